// Command stafftoken mints a back-office JWT for a staff member.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	pkgAuth "github.com/justcook/justcook-backend/pkg/auth"
	"github.com/justcook/justcook-backend/pkg/config"
	"github.com/justcook/justcook-backend/pkg/enums"
	"github.com/justcook/justcook-backend/pkg/logger"
)

func main() {
	staff := flag.String("staff", "", "staff id (uuid); generated when empty")
	role := flag.String("role", string(enums.StaffRoleStaff), "staff|admin")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "stafftoken", Output: os.Stderr})
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	staffRole, err := enums.ParseStaffRole(*role)
	if err != nil {
		logg.Error(ctx, "invalid role", err)
		os.Exit(2)
	}

	staffID := uuid.New()
	if *staff != "" {
		if staffID, err = uuid.Parse(*staff); err != nil {
			logg.Error(ctx, "invalid staff id", err)
			os.Exit(2)
		}
	}

	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{StaffID: staffID, Role: staffRole})
	if err != nil {
		logg.Error(ctx, "failed to mint token", err)
		os.Exit(1)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"staff_id":   staffID.String(),
		"role":       staffRole,
		"expires_in": fmt.Sprintf("%dm", cfg.JWT.ExpirationMinutes),
	}), "staff token minted")
	fmt.Println(token)
}
