// ABOUTME: Row shapes for doctor registration requests and the doctors directory
// ABOUTME: Includes the specialization and dominant-state vocabularies doctors are filed under

package schema

import "time"

// DoctorRequestStatus is the review state of a registration request.
type DoctorRequestStatus string

const (
	DoctorRequestPending  DoctorRequestStatus = "pending"
	DoctorRequestApproved DoctorRequestStatus = "approved"
	DoctorRequestRejected DoctorRequestStatus = "rejected"
)

// DoctorRequest is a row of doctor_registration_requests, submitted by a
// doctor through the public registration form.
type DoctorRequest struct {
	ID                       string              `json:"id" validate:"required"`
	Email                    string              `json:"email" validate:"required"`
	Password                 *string             `json:"password"`
	FullName                 string              `json:"full_name" validate:"required"`
	PhoneNumber              *string             `json:"phone_number"`
	Specialization           string              `json:"specialization"`
	YearsExperience          *int                `json:"years_experience"`
	LicenseNumber            *string             `json:"license_number"`
	City                     *string             `json:"city"`
	AddressLine1             *string             `json:"address_line_1"`
	AddressLine2             *string             `json:"address_line_2"`
	PostalCode               *string             `json:"postal_code"`
	LicenseDocumentURL       *string             `json:"license_document_url"`
	QualificationDocumentURL *string             `json:"qualification_document_url"`
	Status                   DoctorRequestStatus `json:"status" validate:"required,oneof=pending approved rejected"`
	RejectionReason          *string             `json:"rejection_reason"`
	SubmittedAt              time.Time           `json:"submitted_at" validate:"required"`
	ReviewedAt               *time.Time          `json:"reviewed_at"`
	ReviewedBy               *string             `json:"reviewed_by"`
}

// DoctorRequestInsert is the shape written by the registration form.
type DoctorRequestInsert struct {
	Email           string  `json:"email"`
	Password        *string `json:"password,omitempty"`
	FullName        string  `json:"full_name"`
	PhoneNumber     *string `json:"phone_number,omitempty"`
	Specialization  string  `json:"specialization"`
	YearsExperience *int    `json:"years_experience,omitempty"`
	LicenseNumber   *string `json:"license_number,omitempty"`
	City            *string `json:"city,omitempty"`
}

// DoctorRequestReview records the outcome of a review.
type DoctorRequestReview struct {
	Status          DoctorRequestStatus `json:"status"`
	RejectionReason *string             `json:"rejection_reason,omitempty"`
	ReviewedAt      time.Time           `json:"reviewed_at"`
	ReviewedBy      string              `json:"reviewed_by"`
}

// Doctor is a row of the doctors table.
type Doctor struct {
	ID             int64     `json:"id" validate:"required"`
	Name           string    `json:"name" validate:"required"`
	Email          string    `json:"email" validate:"required"`
	Phone          string    `json:"phone"`
	Category       string    `json:"category" validate:"required"`
	ProfilePicture *string   `json:"profilepicture"`
	DominantState  *string   `json:"dominant_state"`
	CreatedAt      time.Time `json:"created_at"`
}

// DoctorInsert is the shape written when adding a doctor.
type DoctorInsert struct {
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Phone          string  `json:"phone"`
	Category       string  `json:"category"`
	ProfilePicture *string `json:"profilepicture"`
	DominantState  *string `json:"dominant_state"`
}

// DoctorPatch is a partial update of a doctor. Nil fields are left alone.
type DoctorPatch struct {
	Name           *string `json:"name,omitempty"`
	Email          *string `json:"email,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	Category       *string `json:"category,omitempty"`
	ProfilePicture *string `json:"profilepicture,omitempty"`
	DominantState  *string `json:"dominant_state,omitempty"`
}

// DoctorCategories are the specializations a doctor is listed under.
var DoctorCategories = []string{
	"Psychiatrist",
	"ClinicalPsychologist",
	"CounsellingPsychologist",
	"Psychotherapist",
	"ChildAdolescentSpecialist",
	"AddictionSpecialist",
	"Neuropsychologist",
	"SleepSpecialist",
	"TraumaSpecialist",
	"FamilyTherapist",
	"Counsellor",
}

// DominantStates are the patient moods a doctor or content item is matched to.
var DominantStates = []string{
	"neutral/calm",
	"angry/frustrated",
	"depressed/sad",
	"stressed/anxious",
	"confused/uncertain",
	"excited/energetic",
}

// Audit actions written by the doctor review workflow.
const (
	AuditApproveDoctor = "approve_doctor"
	AuditRejectDoctor  = "reject_doctor"
)
