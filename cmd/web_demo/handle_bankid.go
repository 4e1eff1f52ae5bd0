package main

import (
	"time"

	"github.com/labstack/echo/v4"
	auth "github.com/valunds/valunds-auth-golang"
)

func (s *WebServer) handleBankIDStart(e echo.Context) error {
	payload := auth.BankIDInitiateRequest{
		PersonalNumber: e.FormValue("personal_number"),
	}

	if err := s.flow.Start(e.Request().Context(), payload); err != nil {
		return e.JSON(400, map[string]string{
			"status":  string(s.flow.Status()),
			"message": s.flow.Message(),
		})
	}

	return e.JSON(200, map[string]string{
		"status":        string(s.flow.Status()),
		"message":       s.flow.Message(),
		"autoStartUrl":  s.flow.AutoStartURL(),
		"timeRemaining": s.flow.TimeRemaining().String(),
	})
}

func (s *WebServer) handleBankIDStatus(e echo.Context) error {
	resp := map[string]string{
		"status":        string(s.flow.Status()),
		"message":       s.flow.Message(),
		"timeRemaining": s.flow.TimeRemaining().String(),
	}

	if qr, err := s.flow.QRAuthCode(time.Now()); err == nil {
		resp["qrAuthCode"] = qr
	}

	return e.JSON(200, resp)
}

func (s *WebServer) handleBankIDCancel(e echo.Context) error {
	s.flow.Cancel(e.Request().Context())

	return e.JSON(200, map[string]string{
		"status": string(s.flow.Status()),
	})
}
