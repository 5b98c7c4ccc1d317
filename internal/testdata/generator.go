// Package testdata seeds demo requests for local runs of the board and API.
// Every seeded address matches the test-data cleanup patterns, so
// cleanup-test-data removes them again.
package testdata

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/jask/aquaflow/internal/database/repository"
	"github.com/jask/aquaflow/internal/intake"
	"github.com/jask/aquaflow/internal/service"
)

// Result lists what Seed created.
type Result struct {
	CustomerIDs []string
	RequestIDs  []string
	Quoted      int
}

var (
	names = []string{"Jordan Lee", "Sam Patel", "Alex Nguyen", "Riley Chen", "Casey Morgan", "Taylor Brooks"}
	descs = []string{
		"Water pooling under the kitchen sink after every use",
		"Hot water runs out after five minutes",
		"Basement floor drain backs up during heavy rain",
		"Toilet keeps running and the handle sticks",
		"Strange banging noise in the pipes at night",
	}
	timings = []string{"as soon as possible", "this week", "next month", "flexible"}
)

// Seed submits n requests from a handful of demo customers and quotes about
// a third of them. rng may be nil.
func Seed(ctx context.Context, svc *service.Services, admin service.Actor, n int, rng *rand.Rand) (Result, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	cats := intake.Categories()
	var res Result
	customers := make([]service.Actor, 3)
	for i := range customers {
		id := uuid.NewString()
		customers[i] = service.Actor{UserID: id, Role: repository.RoleCustomer}
		res.CustomerIDs = append(res.CustomerIDs, id)
	}

	for i := 0; i < n; i++ {
		who := customers[rng.Intn(len(customers))]
		name := names[rng.Intn(len(names))]
		req, err := svc.Requests.Submit(ctx, who, service.SubmitInput{
			CustomerName:       name,
			ServiceAddress:     fmt.Sprintf("%d Test St, Kelowna BC V1V1V1", 100+rng.Intn(900)),
			ContactInfo:        fmt.Sprintf("demo+%d@aquaflow.example", i),
			ProblemCategory:    cats[rng.Intn(len(cats))].Key,
			IsEmergency:        rng.Intn(8) == 0,
			PropertyType:       []string{"Residential", "Apartment", "Commercial"}[rng.Intn(3)],
			IsHomeowner:        []string{"Yes", "No"}[rng.Intn(2)],
			ProblemDescription: descs[rng.Intn(len(descs))],
			PreferredTiming:    timings[rng.Intn(len(timings))],
		})
		if err != nil {
			return res, fmt.Errorf("seed request %d: %w", i, err)
		}
		res.RequestIDs = append(res.RequestIDs, req.ID)

		if rng.Intn(3) == 0 {
			_, err := svc.Quotes.Create(ctx, admin, req.ID, service.QuoteInput{
				Details:     "Diagnose and repair",
				AmountCents: int64(15000 + rng.Intn(60)*1000),
			})
			if err != nil {
				return res, fmt.Errorf("seed quote for %s: %w", req.ID, err)
			}
			res.Quoted++
		}
	}
	return res, nil
}
