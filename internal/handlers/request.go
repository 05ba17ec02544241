package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rapprochement/rapprochement-api/internal/middleware"
	"github.com/rapprochement/rapprochement-api/internal/services"
	"github.com/rapprochement/rapprochement-api/internal/utils"
)

func parseIDParam(c fiber.Ctx, resource string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, utils.NewBadRequestError("invalid "+resource+" ID", nil)
	}
	return id, nil
}

// requireActor returns the operator id set by the auth middleware
func requireActor(c fiber.Ctx) (string, error) {
	actor := middleware.Actor(c)
	if actor == "" {
		return "", utils.NewUnauthorizedError("unauthorized - user not authenticated")
	}
	return actor, nil
}

// parsePeriodQuery reads month=YYYY-MM (default: current month), ytd and entity_id
func parsePeriodQuery(c fiber.Ctx, now time.Time) (services.Period, *uuid.UUID, error) {
	month := c.Query("month")
	if month == "" {
		month = now.Format("2006-01")
	}
	ytd, err := strconv.ParseBool(c.Query("ytd", "false"))
	if err != nil {
		return services.Period{}, nil, utils.NewBadRequestError("ytd must be a boolean", nil)
	}
	period, err := services.ParsePeriod(month, ytd)
	if err != nil {
		return services.Period{}, nil, err
	}

	var entityID *uuid.UUID
	if raw := c.Query("entity_id"); raw != "" && raw != "all" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return services.Period{}, nil, utils.NewBadRequestError("invalid entity_id", nil)
		}
		entityID = &id
	}
	return period, entityID, nil
}

// parseMatchOptions overlays candidate query parameters on the defaults.
// "off" disables a tolerance.
func parseMatchOptions(c fiber.Ctx, defaults services.MatchOptions) (services.MatchOptions, error) {
	opts := defaults
	opts.Query = strings.TrimSpace(c.Query("q"))

	if raw := c.Query("amount_tolerance"); raw != "" {
		if raw == "off" {
			opts.AmountTolerancePercent = services.Disabled
		} else {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v < 0 {
				return opts, utils.NewBadRequestError("amount_tolerance must be a non-negative number or off", nil)
			}
			opts.AmountTolerancePercent = v
		}
	}
	if raw := c.Query("date_tolerance"); raw != "" {
		if raw == "off" {
			opts.DateToleranceDays = services.Disabled
		} else {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 0 {
				return opts, utils.NewBadRequestError("date_tolerance must be a non-negative number of days or off", nil)
			}
			opts.DateToleranceDays = v
		}
	}
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return opts, utils.NewBadRequestError("limit must be a positive integer", nil)
		}
		opts.Limit = v
	}
	return opts, nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
