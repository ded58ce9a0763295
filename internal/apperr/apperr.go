package apperr

import "fmt"

// Error is a domain rule violation. The message is shown to API callers verbatim.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches on Code so that formatted variants compare equal to their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	ErrSerialNumberExists      = New("serial_number_exists", "Serial number already exists")
	ErrPassportNotFound        = New("passport_not_found", "Passport not found")
	ErrPassportNotFoundSerial  = New("passport_not_found_for_serial", "Passport not found for serial number")
	ErrPassportInUse           = New("passport_in_use", "Passport has registered devices")
	ErrPassportRangeInUse      = New("passport_range_in_use", "Passport range does not cover registered devices")
	ErrInvalidSerialNumber     = New("invalid_serial_number", "Invalid serial number")
	ErrDeviceNotRegistered     = New("device_not_registered", "Device not registered")
	ErrDeviceAlreadyRegistered = New("device_already_registered", "Device already registered")
	ErrUserNotFound            = New("user_not_found", "User not found")
	ErrEmailTaken              = New("email_taken", "Email already taken")
	ErrPhoneTaken              = New("phone_taken", "Phone already taken")
	ErrAdminPasswordImmutable  = New("admin_password_immutable", "Admin password can't be changed")
	ErrInvalidPassword         = New("invalid_password", "Invalid password")
	ErrInvalidCredentials      = New("invalid_credentials", "Invalid credentials")
	ErrValidation              = New("validation", "Invalid request")
)

// PassportNotFoundForSerial carries the offending serial in its message.
func PassportNotFoundForSerial(serial string) *Error {
	return New(ErrPassportNotFoundSerial.Code, fmt.Sprintf("Passport not found for serial number: %s", serial))
}

// Validation wraps a validator message as a domain error.
func Validation(msg string) *Error {
	return New(ErrValidation.Code, msg)
}
