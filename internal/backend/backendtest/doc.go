// Package backendtest provides Fake, an in-memory backend for unit tests.
//
// Fake keeps tables as JSON-shaped maps, counts every call and can be told to
// fail any operation. It emulates the approve_admin procedure with the same
// rules as the hosted backend.
package backendtest
