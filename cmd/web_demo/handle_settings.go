package main

import (
	"fmt"
	"html"
	"net/url"

	"github.com/labstack/echo/v4"
	auth "github.com/valunds/valunds-auth-golang"
)

func (s *WebServer) handleSettingsPage(e echo.Context) error {
	user, err := s.store.CurrentUser(e.Request().Context())
	if err != nil {
		return err
	}

	if user == nil {
		return e.Redirect(302, "/login")
	}

	notice := ""
	if msg := e.QueryParam("e"); msg != "" {
		notice = fmt.Sprintf(`<p class="error">%s</p>`, html.EscapeString(msg))
	}

	return e.HTML(200, page("Settings", notice+fmt.Sprintf(`<h1>Settings</h1>
<form method="post" action="/settings/profile">
<input name="first_name" value="%s" placeholder="First name">
<input name="last_name" value="%s" placeholder="Last name">
<input name="phone_number" value="%s" placeholder="Phone">
<input name="city" value="%s" placeholder="City">
<button type="submit">Save profile</button>
</form>
<form method="post" action="/settings/password">
<input name="current_password" type="password" placeholder="Current password">
<input name="new_password" type="password" placeholder="New password">
<button type="submit">Change password</button>
</form>`,
		html.EscapeString(user.FirstName), html.EscapeString(user.LastName),
		html.EscapeString(user.PhoneNumber), html.EscapeString(user.City))))
}

func (s *WebServer) handleProfileSubmit(e echo.Context) error {
	updates := auth.ProfileUpdate{}

	if v := e.FormValue("first_name"); v != "" {
		updates.FirstName = &v
	}
	if v := e.FormValue("last_name"); v != "" {
		updates.LastName = &v
	}
	if v := e.FormValue("phone_number"); v != "" {
		updates.PhoneNumber = &v
	}
	if v := e.FormValue("city"); v != "" {
		updates.City = &v
	}

	if _, err := s.store.UpdateProfile(e.Request().Context(), updates); err != nil {
		return e.Redirect(302, "/settings?e="+url.QueryEscape(auth.ErrorMessage(err)))
	}

	return e.Redirect(302, "/settings")
}

func (s *WebServer) handlePasswordSubmit(e echo.Context) error {
	payload := auth.PasswordChangeRequest{
		CurrentPassword: e.FormValue("current_password"),
		NewPassword:     e.FormValue("new_password"),
	}

	if err := s.store.ChangePassword(e.Request().Context(), payload); err != nil {
		return e.Redirect(302, "/settings?e="+url.QueryEscape(auth.ErrorMessage(err)))
	}

	return e.Redirect(302, "/settings")
}
