// Package schema describes and validates the structured replies a language
// model must produce for a state.
//
// A Descriptor lists named fields with a small type system (string, int, float,
// bool, slices, enums, nested objects). It renders to a strict JSON Schema
// document, optionally extended with the reserved "transition" field that the
// engine uses to let the model pick the next state:
//
//	d := schema.New("Confirmation",
//	    schema.Required("confirmation", schema.Enum("yes", "no"), "Whether the details are correct"),
//	)
//	doc := d.Document([]string{"no-op", "CONFIRM", "IDENTIFIED"})
//
// Replies are checked with a compiled Validator and decoded into a Payload:
//
//	v, _ := schema.Compile(doc)
//	p, obj, err := schema.Parse(reply)
//	if err == nil {
//	    err = v.Validate(obj)
//	}
//
// Descriptors can also be inferred from Go structs with FromType, and a
// Payload can be decoded back into a struct with Payload.Decode.
package schema
