// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing tickets and commits. They are not intended for
// production usage.
package testutil
