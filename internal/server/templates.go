package server

import (
	_ "embed"
	"html/template"
)

//go:embed templates/login.html
var loginPageTemplateHTML string

//go:embed templates/hosted_callback.html
var hostedCallbackTemplateHTML string

//go:embed templates/failure.html
var failurePageTemplateHTML string

var loginPageTemplate = template.Must(template.New("login").Parse(loginPageTemplateHTML))
var hostedCallbackTemplate = template.Must(template.New("hosted_callback").Parse(hostedCallbackTemplateHTML))
var failurePageTemplate = template.Must(template.New("failure").Parse(failurePageTemplateHTML))

// LoginPageData represents the data for the sign-in page
type LoginPageData struct {
	IsAuthenticated bool
	UserEmail       string
	GoogleEnabled   bool
	HostedEnabled   bool
	Message         string
	MessageType     string // "success" or "error"
}

// FailurePageData represents the data for the sign-in failure page
type FailurePageData struct {
	Message string
}
