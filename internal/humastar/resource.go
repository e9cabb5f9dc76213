// resource.go: reusable action definitions.
//
// ActionDef is a URL pattern template for an action on one resource
// (e.g. "/api/v1/map/layers/%s/toggle"). ActionsFor turns the definitions
// that apply to a resource's current state into concrete Actions.
package humastar

import "fmt"

// ActionDef is a reusable action template.
// Pattern uses a single %s verb for the resource ID.
type ActionDef struct {
	Rel     string // IANA or custom rel (e.g., "delete", "activate")
	Pattern string // URL pattern with %s placeholder
	Method  string // HTTP method: POST, PUT, DELETE, etc.
	Title   string // human-readable label
	// When reports whether the action applies. Nil means always.
	When func(state any) bool
}

// ActionsFor generates the Actions of defs that apply to state for the
// resource id.
func ActionsFor(id string, state any, defs []ActionDef) []Action {
	actions := make([]Action, 0, len(defs))
	for _, d := range defs {
		if d.When != nil && !d.When(state) {
			continue
		}
		actions = append(actions, Action{
			Rel:    d.Rel,
			Href:   fmt.Sprintf(d.Pattern, id),
			Method: d.Method,
			Title:  d.Title,
		})
	}
	return actions
}
