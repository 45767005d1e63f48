// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package submission

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/jhsmart/docsync/lib/docref"
)

// Status is the handling state of a contact or lead.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusResolved Status = "Resolved"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusResolved
}

// DateLayout is the layout of submissionDate: UTC with milliseconds.
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// ContactForm is the input of the contact form.
type ContactForm struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// Contact is a stored contact record.
type Contact struct {
	ID                   string `json:"id,omitempty"`
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Phone                string `json:"phone"`
	Message              string `json:"message"`
	SubmissionDate       string `json:"submissionDate"`
	ServiceRequestNumber string `json:"serviceRequestNumber"`
	Status               Status `json:"status"`
}

// LeadForm is the input of the quote request form.
type LeadForm struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Service string `json:"service"`
	Message string `json:"message,omitempty"`
}

// Lead is a stored quote request.
type Lead struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone,omitempty"`
	Service        string `json:"service"`
	Message        string `json:"message,omitempty"`
	SubmissionDate string `json:"submissionDate"`
	Status         Status `json:"status"`
}

// Normalize trims surrounding whitespace from every field.
func (f ContactForm) Normalize() ContactForm {
	return ContactForm{
		Name:    strings.TrimSpace(f.Name),
		Email:   strings.TrimSpace(f.Email),
		Phone:   strings.TrimSpace(f.Phone),
		Message: strings.TrimSpace(f.Message),
	}
}

// Validate reports every problem with the form at once.
func (f ContactForm) Validate() error {
	var problems docref.ValidationError
	checkName(&problems, f.Name)
	checkEmail(&problems, f.Email)
	if utf8.RuneCountInString(f.Phone) < 10 {
		problems.Add("phone", "Please enter a valid phone number.")
	}
	if utf8.RuneCountInString(f.Message) < 10 {
		problems.Add("message", "Message must be at least 10 characters.")
	}
	return problems.Err()
}

// Normalize trims surrounding whitespace from every field.
func (f LeadForm) Normalize() LeadForm {
	return LeadForm{
		Name:    strings.TrimSpace(f.Name),
		Email:   strings.TrimSpace(f.Email),
		Phone:   strings.TrimSpace(f.Phone),
		Service: strings.TrimSpace(f.Service),
		Message: strings.TrimSpace(f.Message),
	}
}

// Validate reports every problem with the form at once. Phone and
// message are optional.
func (f LeadForm) Validate() error {
	var problems docref.ValidationError
	checkName(&problems, f.Name)
	checkEmail(&problems, f.Email)
	if f.Service == "" {
		problems.Add("service", "Please select a service.")
	}
	return problems.Err()
}

func checkName(problems *docref.ValidationError, name string) {
	if utf8.RuneCountInString(name) < 2 {
		problems.Add("name", "Name must be at least 2 characters.")
	}
}

// checkEmail accepts a bare address only, rejecting display-name
// forms such as "Asha <asha@example.com>".
func checkEmail(problems *docref.ValidationError, email string) {
	address, err := mail.ParseAddress(email)
	if err != nil || address.Address != email {
		problems.Add("email", "Please enter a valid email.")
		return
	}
	_, domain, _ := strings.Cut(address.Address, "@")
	if !strings.Contains(domain, ".") {
		problems.Add("email", "Please enter a valid email.")
	}
}
