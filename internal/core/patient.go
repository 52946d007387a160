package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"vetchat/pkg"
)

// patientRecord is what the system prompt is built from. History is nil
// when it could not be loaded.
type patientRecord struct {
	Patient *pkg.Patient
	History json.RawMessage
}

// loadPatientRecord fetches demographics and appointment history
// concurrently. Failures are logged and leave the field nil.
func (s *ChatService) loadPatientRecord(ctx context.Context, patientID string) patientRecord {
	var (
		rec patientRecord
		wg  sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		p, err := s.Backend.GetPatient(ctx, patientID)
		if err != nil {
			s.Logger.Warn("patient fetch failed", zap.String("patient_id", patientID), zap.Error(err))
			s.Metrics.ObserveUpstreamFailure("get_patient")
			return
		}
		rec.Patient = p
	}()
	go func() {
		defer wg.Done()
		h, err := s.Backend.GetAppointmentHistory(ctx, patientID)
		if err != nil {
			s.Logger.Warn("appointment history fetch failed", zap.String("patient_id", patientID), zap.Error(err))
			s.Metrics.ObserveUpstreamFailure("get_appointment_history")
			return
		}
		rec.History = h
	}()
	wg.Wait()
	return rec
}

// BuildSystemPrompt renders the prompt for a patient, or the generic prompt
// when p is nil. The appointment history JSON is embedded verbatim.
func BuildSystemPrompt(p *pkg.Patient, history json.RawMessage, screenContext string) string {
	var b strings.Builder
	if p == nil {
		b.WriteString(GenericSystemPrompt)
	} else {
		b.WriteString(GenericSystemPrompt)
		b.WriteString("\n\nYou are currently assisting with the following patient.\n\n")
		b.WriteString("Patient Information:\n")
		writeField(&b, "Name", p.Name)
		writeField(&b, "Species", p.Species)
		writeField(&b, "Breed", p.Breed)
		writeField(&b, "Gender", p.Gender)
		writeField(&b, "Color", p.Color)
		writeField(&b, "Date of Birth", p.DateOfBirth)
		writeField(&b, "Weight", formatWeight(p.Weight))
		writeField(&b, "Microchip Number", p.MicrochipNumber)
		if p.IsActive != nil {
			status := "Inactive"
			if *p.IsActive {
				status = "Active"
			}
			writeField(&b, "Status", status)
		}
		b.WriteString("\nOwner Information:\n")
		writeField(&b, "Name", p.OwnerName())
		writeField(&b, "Email", p.ClientEmail)
		writeField(&b, "Phone", p.ClientPhoneNumber)

		b.WriteString("\nAppointment History (JSON):\n")
		if len(history) == 0 {
			b.WriteString(NoAppointmentHistory)
		} else {
			b.Write(history)
		}
		b.WriteString("\n\n")
		b.WriteString(PatientInstructions)
	}
	if sc := strings.TrimSpace(screenContext); sc != "" {
		b.WriteString("\n\nThe user is currently looking at this screen of the dashboard:\n")
		b.WriteString(sc)
	}
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		value = "Not provided"
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}

func formatWeight(w any) string {
	switch v := w.(type) {
	case nil:
		return ""
	case float64:
		return fmt.Sprintf("%g kg", v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
