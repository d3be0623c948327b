// Package pipeline assembles and runs the per-document request chains.
//
// # Architecture
//
// A pipe is a named, ordered list of stages taken from a fixed registry:
//
//	cors              pre-flight headers
//	any_handler       binds the any-method operation of a route
//	params_parser     bounded JSON (and urlencoded form) body parsing
//	params_validator  route matching plus parameter coercion and validation
//	router            controller invocation and response writing
//
// Assemble binds every pipe to one route table and resolves all stage names,
// parameter schemas and controllers up front, so an Instance never fails
// for configuration reasons at request time.
//
// # Stage Contract
//
// Each stage receives the RequestContext and a next function:
//
//	func (s *myStage) Process(rc *RequestContext, next func() error) error {
//	    // mutate rc, then either continue...
//	    return next()
//	    // ...or halt the chain
//	    return domain.ErrBadRequest("...")
//	}
//
// A returned error halts the chain; the Instance converts it into the
// structured error response.
package pipeline
