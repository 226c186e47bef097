// Package errors provides coded, actionable errors for the isomorph CLI and
// configuration layer.
//
// Library packages keep plain sentinel errors; this package is for the
// boundary where an error is shown to an operator. Each code maps to a short
// message, an explanation and optionally a suggestion:
//
//	err := errors.New("E122").
//	    WithDetail("listen address \"localhost\" has no port").
//	    WithSuggestion("Use host:port, e.g. \":8080\"")
//
//	errors.PrintError(err)
//	// ERROR E122: Invalid configuration value
//	//
//	//   listen address "localhost" has no port
//	//
//	//   Hint: Use host:port, e.g. ":8080"
package errors
