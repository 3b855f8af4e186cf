// Command portal-sync is a headless dashboard: it keeps a session, polls the
// portal API and logs the derived view after every refresh.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iliyamo/agency-portal/internal/config"
	"github.com/iliyamo/agency-portal/internal/syncengine"
)

func main() {
	cfg := config.LoadSyncConfig()
	baseURL := flag.String("base-url", cfg.BaseURL, "portal API root including /api")
	sessionFile := flag.String("session-file", cfg.SessionFile, "session file path")
	email := flag.String("email", cfg.Email, "login email when no session is stored")
	password := flag.String("password", cfg.Password, "login password")
	role := flag.String("role", cfg.Role, "expected role (client or admin)")
	interval := flag.Duration("interval", cfg.PollInterval, "poll interval")
	timeout := flag.Duration("timeout", cfg.Timeout, "per-request timeout")
	project := flag.String("project", "", "project to focus on (admin)")
	send := flag.String("send", "", "post a message to the current project, then continue")
	subscribe := flag.String("subscribe", "", "subscribe an email to the newsletter and exit")
	logout := flag.Bool("logout", false, "end the stored session and exit")
	once := flag.Bool("once", false, "refresh once and exit")
	flag.Parse()

	client := syncengine.NewHTTPClient(*baseURL, &http.Client{Timeout: *timeout})
	identity := syncengine.NewIdentity(syncengine.FileSessionStore{Path: *sessionFile})
	identity.OnChange(func(s syncengine.Session) {
		if s.SignedIn() {
			log.Printf("portal-sync: signed in as %s (%s)", s.User.Email, s.User.Role)
			return
		}
		log.Printf("portal-sync: signed out")
	})

	var engine *syncengine.Engine
	engine = syncengine.New(client, identity, syncengine.Options{
		Logger: log.Default(),
		AfterTick: func(err error) {
			if err == nil {
				logDashboard(engine.Dashboard())
			}
		},
	})

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *subscribe != "" {
		if err := engine.SubscribeEmail(rootCtx, *subscribe); err != nil {
			log.Fatalf("subscribe: %v", err)
		}
		log.Printf("portal-sync: subscribed %s", *subscribe)
		return
	}

	if err := engine.Restore(rootCtx); err != nil && !errors.Is(err, syncengine.ErrAuth) {
		log.Printf("portal-sync: restore: %v", err)
	}
	if *logout {
		if err := engine.Logout(rootCtx); err != nil {
			log.Fatalf("logout: %v", err)
		}
		return
	}
	if !identity.Current().SignedIn() && strings.TrimSpace(*email) != "" {
		if _, err := engine.Login(rootCtx, *email, *password, *role); err != nil {
			log.Fatalf("login: %v", err)
		}
	}
	if !identity.Current().SignedIn() {
		log.Fatalf("no session: set PORTAL_EMAIL and PORTAL_PASSWORD or pass --email/--password")
	}

	if *project != "" {
		if err := engine.SelectProject(rootCtx, *project); err != nil {
			log.Printf("portal-sync: select project: %v", err)
		}
	}
	if *send != "" {
		d := engine.Dashboard()
		if !d.HasCurrent {
			log.Fatalf("send: no project to post to")
		}
		if _, err := engine.SendMessage(rootCtx, d.Current.ID, *send); err != nil {
			log.Fatalf("send: %v", err)
		}
	}

	if *once {
		if err := engine.Refresh(rootCtx); err != nil {
			log.Fatalf("refresh: %v", err)
		}
		logDashboard(engine.Dashboard())
		return
	}

	if err := engine.Run(rootCtx, *interval); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("portal-sync: stopped: %v", err)
	}
	log.Printf("portal-sync: stopping")
}

func logDashboard(d syncengine.Dashboard) {
	if !d.SignedIn {
		log.Printf("portal-sync: signed out")
		return
	}
	log.Printf("portal-sync: %d projects (%d active, %d completed), refreshed %s",
		len(d.Projects), len(d.Active), len(d.Completed), humanize.Time(d.RefreshedAt))
	if !d.HasCurrent {
		log.Printf("portal-sync: no projects yet")
		return
	}
	log.Printf("portal-sync: current %q: %s %d%% [%s], %d messages, %d files, %d unread",
		d.Current.Title, d.Current.Stage, d.Current.ProgressPercent, d.Current.Status,
		len(d.Thread), len(d.Files), d.Unread)
	for _, n := range d.Notifications {
		log.Printf("portal-sync:   %s  %s", n.CreatedAt.Format(time.Stamp), n.Text)
	}
	for _, t := range d.Threads {
		if t.HasLast {
			log.Printf("portal-sync:   thread %q: %s: %s", t.Project.Title, t.Last.SenderName, t.Last.Text)
		}
	}
}
