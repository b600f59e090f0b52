// Package middleware contains HTTP middleware for the REST endpoints of the commands in cmd/.
package middleware
