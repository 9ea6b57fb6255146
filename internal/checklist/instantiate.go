package checklist

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/checklist-engine/internal/models"
)

// defaultFieldValue fills machine type and serial number when left blank
const defaultFieldValue = "N/A"

// normalizeChecklistRequest trims and validates the admin input
func normalizeChecklistRequest(req models.CreateChecklistRequest) (models.CreateChecklistRequest, error) {
	v := &ValidationError{}
	out := models.CreateChecklistRequest{
		TemplateID:    strings.TrimSpace(req.TemplateID),
		ProjectName:   strings.TrimSpace(req.ProjectName),
		MachineType:   strings.TrimSpace(req.MachineType),
		SerialNumber:  strings.TrimSpace(req.SerialNumber),
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		DueDate:       req.DueDate,
	}

	if out.TemplateID == "" {
		v.add("template_id", "is required")
	}
	if out.ProjectName == "" {
		v.add("project_name", "is required")
	}
	if out.CustomerName == "" {
		v.add("customer_name", "is required")
	}
	if out.CustomerEmail == "" {
		v.add("customer_email", "is required")
	} else if addr, err := mail.ParseAddress(out.CustomerEmail); err != nil {
		v.add("customer_email", "is not a valid email address")
	} else {
		out.CustomerEmail = addr.Address
	}
	if out.MachineType == "" {
		out.MachineType = defaultFieldValue
	}
	if out.SerialNumber == "" {
		out.SerialNumber = defaultFieldValue
	}

	if err := v.orNil(); err != nil {
		return models.CreateChecklistRequest{}, err
	}
	return out, nil
}

// instantiate builds a new checklist from tmpl. The category tree is deep
// copied so later template edits never reach the checklist.
func instantiate(tmpl *models.Template, req models.CreateChecklistRequest, now time.Time) (*models.Checklist, error) {
	token, err := models.GeneratePublicToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate public token: %w", err)
	}

	due := req.DueDate
	if due == nil {
		days := tmpl.EstimatedDays
		if days < 1 {
			days = models.DefaultEstimatedDays
		}
		d := now.AddDate(0, 0, days)
		due = &d
	} else {
		d := due.UTC()
		due = &d
	}

	templateID := tmpl.ID
	var phone *string
	if req.CustomerPhone != "" {
		p := req.CustomerPhone
		phone = &p
	}

	return &models.Checklist{
		ID:            uuid.New().String(),
		TemplateID:    &templateID,
		ProjectName:   req.ProjectName,
		MachineType:   req.MachineType,
		SerialNumber:  req.SerialNumber,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: phone,
		PublicToken:   token,
		Status:        models.StatusSent,
		DueDate:       due,
		Categories:    tmpl.Categories.Clone(),
		TaskStates:    models.TaskStates{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}
