// Package users reads and updates platform user records.
package users
