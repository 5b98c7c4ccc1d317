// Package intake holds the guided intake question catalogue and the
// heuristics used on submitted answers.
package intake

// Category is one service type offered in the intake flow.
type Category struct {
	Key       string   `json:"key"`
	Label     string   `json:"label"`
	Questions []string `json:"questions"`
}

// GenericQuestion is asked for every category.
type GenericQuestion struct {
	Key      string   `json:"key"`
	Question string   `json:"question"`
	Choices  []string `json:"choices,omitempty"`
}

const OtherKey = "other"

var genericQuestions = []GenericQuestion{
	{Key: "property_type", Question: "What type of property is this service for?", Choices: []string{"Residential", "Apartment", "Commercial", "Other"}},
	{Key: "is_homeowner", Question: "Do you own this property?", Choices: []string{"Yes", "No"}},
	{Key: "preferred_timing", Question: "When would you like this service to be scheduled?"},
}

var categories = []Category{
	{
		Key:   "bathroom_reno",
		Label: "Bathroom Renovation",
		Questions: []string{
			"Are you changing the plumbing layout (e.g., moving the toilet, sink, or shower location)?",
			"Are you replacing the main shower/tub valve that is inside the wall?",
			"What specific fixtures do you plan to use, or would you like recommendations?",
			"Will any other renovations happen at the same time that might affect the plumbing work?",
			"Are there any known issues with the existing plumbing?",
		},
	},
	{
		Key:   "perimeter_drains",
		Label: "Perimeter Drains",
		Questions: []string{
			"Have you experienced flooding or pooling water near the foundation?",
			"What is the ground surface around the foundation (e.g., grass, concrete patio, garden beds)?",
			"Do you have a sump pump, or does the system drain directly to a city storm connection?",
			"Do you know the approximate age of your property?",
		},
	},
	{
		Key:   "water_heater_install",
		Label: "Water Heater Installation",
		Questions: []string{
			"Is the new water heater gas or electric?",
			"Will you be providing the new water heater, or should we include one in the quote?",
			"Is this a replacement for an existing water heater, or a new installation?",
			"What is the size of the new unit (e.g., 40-gallon, 50-gallon tank), if you know?",
			"Where is the installation location, and are there any space or access constraints?",
		},
	},
	{
		Key:   "leak_repair",
		Label: "Leak Repair",
		Questions: []string{
			"Where is the leak located (e.g., under a sink, in a wall/ceiling, outside)?",
			"Is water actively leaking right now, and have you been able to shut off the main water valve?",
			"How severe is the leak (e.g., slow drip, steady stream)?",
			"When did you first notice the leak?",
		},
	},
	{
		Key:   "fixture_install",
		Label: "Fixture Installation",
		Questions: []string{
			"What type of fixture do you need installed (e.g., faucet, toilet, shower head, garburator)?",
			"Do you already have the new fixture and all its parts on-site?",
			"Is this a replacement for an old fixture or a brand new installation?",
			"Is the new fixture the same size and configuration as the old one?",
		},
	},
	{
		Key:   "main_line_repair",
		Label: "Main Line (Sewer/Water) Repair",
		Questions: []string{
			"What issues are you experiencing (e.g., slow drains everywhere, water in the yard, backup)?",
			"Where is the main line located on your property?",
			"Do you know the approximate age of your home?",
			"Has the main line been repaired or cleared recently?",
		},
	},
	{
		Key:   "emergency_service",
		Label: "Emergency Service",
		Questions: []string{
			"Please describe the nature of your plumbing emergency in detail.",
			"Is water currently shut off to the affected area or the whole house?",
			"Is there any risk of significant water damage occurring?",
		},
	},
	{
		Key:   OtherKey,
		Label: "Other (Describe Your Request)",
		Questions: []string{
			"Please describe your plumbing request or issue in detail.",
			"Are there any specific requirements or concerns?",
			"When would you like the service performed?",
		},
	},
}

// Categories returns a copy of the catalogue in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	for i, c := range categories {
		c.Questions = append([]string(nil), c.Questions...)
		out[i] = c
	}
	return out
}

// GenericQuestions returns the questions asked for every category.
func GenericQuestions() []GenericQuestion {
	return append([]GenericQuestion(nil), genericQuestions...)
}

// Lookup finds a category by key.
func Lookup(key string) (Category, bool) {
	for _, c := range categories {
		if c.Key == key {
			return c, true
		}
	}
	return Category{}, false
}

// Label returns the display label for key, or key itself when unknown.
func Label(key string) string {
	if c, ok := Lookup(key); ok {
		return c.Label
	}
	return key
}
