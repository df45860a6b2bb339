// Package context holds the state shared by the application and its CLI
// commands. It lives apart from the app package so that cli can import it.
package context
