package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/gorilla/sessions"
	"github.com/joho/godotenv"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	slogecho "github.com/samber/slog-echo"
	"github.com/urfave/cli/v2"
	auth "github.com/valunds/valunds-auth-golang"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type WebServer struct {
	store *auth.SessionStore
	flow  *auth.Flow
	db    *gorm.DB
}

func main() {
	app := &cli.App{
		Name:   "valunds-web",
		Action: run,
	}

	app.RunAndExitOnError()
}

func run(cmd *cli.Context) error {
	_ = godotenv.Load()

	apiOrigin := os.Getenv("VALUNDS_API_ORIGIN")
	if apiOrigin == "" {
		apiOrigin = "http://localhost:8000"
	}

	cookieSecret := os.Getenv("VALUNDS_COOKIE_SECRET")
	if cookieSecret == "" {
		return fmt.Errorf("VALUNDS_COOKIE_SECRET must be set (see cmd/helper generate-secret)")
	}

	addr := os.Getenv("VALUNDS_WEB_ADDR")
	if addr == "" {
		addr = ":7070"
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}

	h := &http.Client{
		Timeout: 10 * time.Second,
		Jar:     jar,
	}

	client, err := auth.NewClient(auth.ClientArgs{
		H:       h,
		BaseURL: apiOrigin + "/api/accounts/",
	})
	if err != nil {
		return err
	}

	db, err := gorm.Open(sqlite.Open("valunds-web.db"), &gorm.Config{})
	if err != nil {
		return err
	}

	if err := db.AutoMigrate(&Profile{}); err != nil {
		return err
	}

	store, err := auth.NewSessionStore(auth.SessionStoreArgs{
		Client:   client,
		Profiles: &GormProfileStore{db: db},
	})
	if err != nil {
		return err
	}

	bankidClient, err := auth.NewBankIDClient(auth.BankIDClientArgs{
		H:       h,
		BaseURL: apiOrigin + "/api/accounts/bankid/",
	})
	if err != nil {
		return err
	}

	flow, err := auth.NewFlow(bankidClient, store, auth.FlowConfig{})
	if err != nil {
		return err
	}

	s := &WebServer{
		store: store,
		flow:  flow,
		db:    db,
	}

	e := echo.New()

	e.Use(slogecho.New(slog.Default()))
	e.Use(session.Middleware(sessions.NewCookieStore([]byte(cookieSecret))))

	e.GET("/", s.handleHome)
	e.GET("/about", s.handleAbout)
	e.GET("/contact", s.handleContact)
	e.GET("/find-talent", s.handleFindTalent)
	e.GET("/professionals", s.handleProfessionals)

	e.GET("/login", s.handleLoginPage)
	e.POST("/login", s.handleLoginSubmit)
	e.GET("/register", s.handleRegisterPage)
	e.POST("/register", s.handleRegisterSubmit)
	e.POST("/logout", s.handleLogout)
	e.GET("/dashboard", s.handleDashboard)

	e.GET("/settings", s.handleSettingsPage)
	e.POST("/settings/profile", s.handleProfileSubmit)
	e.POST("/settings/password", s.handlePasswordSubmit)

	e.POST("/bankid/start", s.handleBankIDStart)
	e.GET("/bankid/status", s.handleBankIDStatus)
	e.POST("/bankid/cancel", s.handleBankIDCancel)

	fmt.Printf("valunds web demo %s\n", versioninfo.Short())

	httpd := http.Server{
		Addr:    addr,
		Handler: e,
	}

	fmt.Println("starting http server...")

	if err := httpd.ListenAndServe(); err != nil {
		return err
	}

	return nil
}
