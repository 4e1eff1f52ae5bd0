package main

import (
	"fmt"
	"html"

	"github.com/labstack/echo/v4"
)

func page(title, body string) string {
	return fmt.Sprintf(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>%s — Valunds</title></head>
<body>
<nav>
<a href="/">Home</a> <a href="/about">About</a> <a href="/contact">Contact</a>
<a href="/find-talent">Find talent</a> <a href="/professionals">Professionals</a>
<a href="/login">Sign in</a>
</nav>
%s
</body>
</html>`, html.EscapeString(title), body)
}

func (s *WebServer) handleHome(e echo.Context) error {
	return e.HTML(200, page("Home", `<h1>Nordic craftsmanship, on demand</h1>
<p>Valunds connects vetted professionals with the teams that need them.</p>`))
}

func (s *WebServer) handleAbout(e echo.Context) error {
	return e.HTML(200, page("About", `<h1>About Valunds</h1>
<p>We are a talent marketplace built for transparency and fair terms.</p>`))
}

func (s *WebServer) handleContact(e echo.Context) error {
	return e.HTML(200, page("Contact", `<h1>Contact</h1>
<p>Reach us at hello@valunds.example.</p>`))
}

func (s *WebServer) handleFindTalent(e echo.Context) error {
	return e.HTML(200, page("Find talent", `<h1>Find talent</h1>
<p>Post a brief and get matched with available professionals.</p>`))
}

func (s *WebServer) handleProfessionals(e echo.Context) error {
	return e.HTML(200, page("Professionals", `<h1>For professionals</h1>
<p>Set your own rates, keep your independence, skip the bidding wars.</p>`))
}

func (s *WebServer) handleLoginPage(e echo.Context) error {
	notice := ""
	if msg := e.QueryParam("e"); msg != "" {
		notice = fmt.Sprintf(`<p class="error">%s</p>`, html.EscapeString(msg))
	}

	return e.HTML(200, page("Sign in", notice+`<h1>Sign in</h1>
<form method="post" action="/login">
<input name="email" type="email" placeholder="Email">
<input name="password" type="password" placeholder="Password">
<button type="submit">Sign in</button>
</form>
<form method="post" action="/bankid/start"><button type="submit">Logga in med BankID</button></form>
<p><a href="/register">Create an account</a></p>`))
}

func (s *WebServer) handleRegisterPage(e echo.Context) error {
	notice := ""
	if msg := e.QueryParam("e"); msg != "" {
		notice = fmt.Sprintf(`<p class="error">%s</p>`, html.EscapeString(msg))
	}

	return e.HTML(200, page("Register", notice+`<h1>Create your account</h1>
<form method="post" action="/register">
<input name="first_name" placeholder="First name">
<input name="last_name" placeholder="Last name">
<input name="email" type="email" placeholder="Email">
<input name="password" type="password" placeholder="Password">
<input name="password_confirm" type="password" placeholder="Confirm password">
<select name="user_type"><option value="freelancer">Professional</option><option value="client">Client</option></select>
<label><input name="terms_accepted" type="checkbox"> I accept the terms of service</label>
<label><input name="privacy_policy_accepted" type="checkbox"> I accept the privacy policy</label>
<button type="submit">Register</button>
</form>`))
}

func (s *WebServer) handleDashboard(e echo.Context) error {
	user, err := s.store.CurrentUser(e.Request().Context())
	if err != nil {
		return err
	}

	if user == nil {
		return e.Redirect(302, "/login")
	}

	name := user.FirstName
	if name == "" {
		name = user.Email
	}

	return e.HTML(200, page("Dashboard", fmt.Sprintf(`<h1>Welcome back, %s</h1>
<p>Account type: %s</p>
<p><a href="/settings">Settings</a></p>
<form method="post" action="/logout"><button type="submit">Sign out</button></form>`,
		html.EscapeString(name), html.EscapeString(user.UserType))))
}
