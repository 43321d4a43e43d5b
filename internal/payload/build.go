package payload

import (
	"fmt"

	"github.com/omniaweb/hnmigrate/internal/document"
	"github.com/omniaweb/hnmigrate/internal/rewrite"
)

// Build assembles the import body from the selected sections of p and
// rewrites service identifiers in every one of them. p is left untouched.
func Build(p *Payload, sel *Selection, plan rewrite.Plan) (*document.Value, rewrite.Result, error) {
	body := document.NewObject()
	for _, key := range sel.Selected() {
		if !sel.catalog.Allowed(key) || !p.Has(key) {
			continue
		}
		body.Set(key, p.Get(key).Clone())
	}

	res, err := rewrite.ApplyMap(body, plan)
	if err != nil {
		return nil, rewrite.Result{}, fmt.Errorf("rewrite sections: %w", err)
	}
	return body, res, nil
}
