package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTicketInvalid      ErrCode = "TICKET_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden      ErrCode = "FORBIDDEN"
	ErrNotCourseOwner ErrCode = "NOT_COURSE_OWNER"
	ErrNotExamAuthor  ErrCode = "NOT_EXAM_AUTHOR"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Access gate ───────────────────────────────────────────────────
	ErrInvalidAccessCode ErrCode = "INVALID_ACCESS_CODE"
	ErrExamNotActive     ErrCode = "EXAM_NOT_ACTIVE"
	ErrAlreadyAttempted  ErrCode = "ALREADY_ATTEMPTED"
	ErrInvalidStudent    ErrCode = "INVALID_STUDENT_NAME"

	// ─── Exam management ───────────────────────────────────────────────
	ErrNoQuestions       ErrCode = "NO_QUESTIONS"
	ErrExamNotDraft      ErrCode = "EXAM_NOT_DRAFT"
	ErrNoDocumentation   ErrCode = "NO_DOCUMENTATION"
	ErrDuplicateQuestion ErrCode = "DUPLICATE_QUESTION"

	// ─── Question generation ───────────────────────────────────────────
	ErrQuotaExceeded     ErrCode = "QUOTA_EXCEEDED"
	ErrProviderError     ErrCode = "LLM_PROVIDER_ERROR"
	ErrMalformedResponse ErrCode = "LLM_MALFORMED_RESPONSE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal     ErrCode = "INTERNAL_ERROR"
	ErrShuttingDown ErrCode = "SHUTTING_DOWN"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Incorrect email or password."
	case ErrSessionInvalidated:
		return "Your session has ended. Please sign in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid or expired."
	case ErrTicketInvalid:
		return "The exam ticket is invalid or expired. Enter the access code again."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrNotCourseOwner:
		return "You do not own this course."
	case ErrNotExamAuthor:
		return "You are not the author of this exam."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Access gate ───────────────────────────────────────────────────
	case ErrInvalidAccessCode:
		return "Invalid access code. Please check and try again."
	case ErrExamNotActive:
		return "This exam is not active."
	case ErrAlreadyAttempted:
		return "You have already taken this exam."
	case ErrInvalidStudent:
		return "Please enter your full name (first and last name)."

	// ─── Exam management ───────────────────────────────────────────────
	case ErrNoQuestions:
		return "This exam has no questions."
	case ErrExamNotDraft:
		return "This exam is not in draft status."
	case ErrNoDocumentation:
		return "The course has no session documentation to generate questions from."
	case ErrDuplicateQuestion:
		return "Question ids must be unique."

	// ─── Question generation ───────────────────────────────────────────
	case ErrQuotaExceeded:
		return "The question generator quota is exhausted. Please retry later."
	case ErrProviderError:
		return "The question generator is unavailable."
	case ErrMalformedResponse:
		return "The question generator returned an unusable response."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	case ErrShuttingDown:
		return "The server is restarting. Please reconnect in a moment."
	default:
		return "An unexpected error occurred."
	}
}
