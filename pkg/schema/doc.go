// Package schema compiles and applies JSON Schemas to untrusted documents.
//
// Tool arguments and structured model outputs are both produced by a language
// model and must be validated before any code acts on them. Schemas are either
// written by hand as maps or reflected from Go types:
//
//	s, err := schema.Compile("remedy_plan", schema.Reflect[RemedyPlan]())
//	if err != nil {
//	    // the schema itself is invalid
//	}
//
//	var doc any
//	_ = json.Unmarshal(raw, &doc)
//	if err := s.Validate(doc); err != nil {
//	    // err is a *schema.ValidationError listing every violation
//	}
//
// Compilation uses santhosh-tekuri/jsonschema (draft 2020-12) and reflection uses
// invopop/jsonschema.
package schema
