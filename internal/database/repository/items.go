package repository

import (
	"fmt"

	"github.com/jask/aquaflow/internal/pricing"
)

func encodeItems(labor, materials []pricing.LineItem) (string, string, error) {
	if labor == nil {
		labor = []pricing.LineItem{}
	}
	if materials == nil {
		materials = []pricing.LineItem{}
	}
	l, err := encodeJSON(labor)
	if err != nil {
		return "", "", fmt.Errorf("encode labor items: %w", err)
	}
	m, err := encodeJSON(materials)
	if err != nil {
		return "", "", fmt.Errorf("encode material items: %w", err)
	}
	return l, m, nil
}
