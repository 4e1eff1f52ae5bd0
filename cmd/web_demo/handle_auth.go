package main

import (
	"net/url"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	auth "github.com/valunds/valunds-auth-golang"
)

func (s *WebServer) handleLoginSubmit(e echo.Context) error {
	payload := auth.LoginRequest{
		Email:    e.FormValue("email"),
		Password: e.FormValue("password"),
	}

	if s.store.RequiresCaptcha(payload.Email) && e.FormValue("captcha") == "" {
		return e.Redirect(302, "/login?e=captcha-required")
	}

	user, err := s.store.Login(e.Request().Context(), payload)
	if err != nil {
		return e.Redirect(302, "/login?e="+url.QueryEscape(auth.ErrorMessage(err)))
	}

	sess, err := session.Get("session", e)
	if err != nil {
		return err
	}

	sess.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
	}

	// make sure the session is empty
	sess.Values = map[interface{}]interface{}{}
	sess.Values["email"] = user.Email

	if err := sess.Save(e.Request(), e.Response()); err != nil {
		return err
	}

	return e.Redirect(302, "/dashboard")
}

func (s *WebServer) handleRegisterSubmit(e echo.Context) error {
	payload := auth.RegisterRequest{
		Email:                 e.FormValue("email"),
		Password:              e.FormValue("password"),
		PasswordConfirm:       e.FormValue("password_confirm"),
		FirstName:             e.FormValue("first_name"),
		LastName:              e.FormValue("last_name"),
		UserType:              e.FormValue("user_type"),
		TermsAccepted:         e.FormValue("terms_accepted") == "on",
		PrivacyPolicyAccepted: e.FormValue("privacy_policy_accepted") == "on",
		MarketingConsent:      e.FormValue("marketing_consent") == "on",
		AnalyticsConsent:      e.FormValue("analytics_consent") == "on",
	}

	user, err := s.store.Register(e.Request().Context(), payload)
	if err != nil {
		return e.Redirect(302, "/register?e="+url.QueryEscape(auth.ErrorMessage(err)))
	}

	sess, err := session.Get("session", e)
	if err != nil {
		return err
	}

	sess.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
	}

	sess.Values = map[interface{}]interface{}{}
	sess.Values["email"] = user.Email

	if err := sess.Save(e.Request(), e.Response()); err != nil {
		return err
	}

	return e.Redirect(302, "/dashboard")
}

func (s *WebServer) handleLogout(e echo.Context) error {
	s.store.Logout(e.Request().Context())

	sess, err := session.Get("session", e)
	if err != nil {
		return err
	}

	sess.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	}

	if err := sess.Save(e.Request(), e.Response()); err != nil {
		return err
	}

	return e.Redirect(302, "/")
}
