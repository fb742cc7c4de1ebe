// recap-admin manages the user roster the pipeline scans: enrolling users,
// storing their platform tokens and inspecting the last run.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/anthropics/meeting-recap/internal/biz/domain"
	"github.com/anthropics/meeting-recap/internal/conf"
	"github.com/anthropics/meeting-recap/internal/data"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	godotenv.Load()
	cfg := conf.LoadFromEnv()

	store, err := data.NewStore(cfg.DBPath)
	if err != nil {
		fmt.Printf("Error: failed to open %s: %v\n", cfg.DBPath, err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()

	switch os.Args[1] {
	case "add-user":
		if len(os.Args) < 4 {
			fmt.Println("Usage: recap-admin add-user <user_id> <email>")
			os.Exit(1)
		}
		err = store.UpsertWatermark(ctx, &domain.Watermark{
			UserID:   os.Args[2],
			Email:    os.Args[3],
			IsActive: true,
		})
		if err == nil {
			fmt.Printf("User %s enrolled\n", os.Args[2])
		}

	case "remove-user":
		if len(os.Args) < 3 {
			fmt.Println("Usage: recap-admin remove-user <user_id>")
			os.Exit(1)
		}
		// deactivation keeps history; records and watermarks stay in place
		err = store.SetUserActive(ctx, os.Args[2], false)
		if err == nil {
			fmt.Printf("User %s deactivated\n", os.Args[2])
		}

	case "set-token":
		if len(os.Args) < 5 {
			fmt.Println("Usage: recap-admin set-token <user_id> <email> <access_token>")
			os.Exit(1)
		}
		err = store.SaveToken(ctx, os.Args[2], os.Args[3], os.Args[4])
		if err == nil {
			fmt.Printf("Token stored for %s\n", os.Args[2])
		}

	case "list-users":
		var users []*domain.Watermark
		users, err = store.ListActiveWatermarks(ctx)
		if err == nil {
			if len(users) == 0 {
				fmt.Println("No active users")
			}
			for _, u := range users {
				fmt.Printf("%s\t%s\tteams=%s zoom=%s\n",
					u.UserID, u.Email,
					formatCheck(u.LastCheck(domain.PlatformTeams)),
					formatCheck(u.LastCheck(domain.PlatformZoom)))
			}
		}

	case "last-run":
		var run *domain.RunLog
		run, err = store.LatestRunLog(ctx)
		if err == nil {
			if run == nil {
				fmt.Println("No runs recorded")
				break
			}
			fmt.Printf("Run %s at %s: %s\n", run.ID, run.RunTimestamp.Format("2006-01-02 15:04:05"), run.Status)
			fmt.Printf("  users=%d found=%d processed=%d errors=%d duration=%s\n",
				run.UsersProcessed, run.MeetingsFound, run.MeetingsProcessed,
				run.ErrorsCount, domain.FormatDuration(run.Duration))
			if run.ErrorDetails != "" {
				fmt.Printf("  details:\n%s\n", run.ErrorDetails)
			}
		}

	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func formatCheck(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02 15:04")
}

func usage() {
	fmt.Println(`Usage: recap-admin <command>

Commands:
  add-user <user_id> <email>                 enroll a user for scanning
  remove-user <user_id>                      deactivate a user
  set-token <user_id> <email> <access_token> store a user's platform token
  list-users                                 show active users and watermarks
  last-run                                   show the most recent run outcome`)
}
