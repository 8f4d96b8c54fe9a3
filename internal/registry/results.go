package registry

import "fmt"

// Code identifies the outcome of a registration.
type Code int

const (
	FileRegistrationSuccessful Code = iota + 1
	FileAlreadyRegistered
	DirectoryRegistrationSuccessful
	DirectoryAlreadyRegistered
	DirectoryRegistrationCancelled
	FileNotFound
	FileSizeExceedsLimits
	FileFormatUnsupported
	AbnormalFile
	RegistrationFailed
)

var codeNames = map[Code]string{
	FileRegistrationSuccessful:      "file_registration_successful",
	FileAlreadyRegistered:           "file_already_registered",
	DirectoryRegistrationSuccessful: "directory_registration_successful",
	DirectoryAlreadyRegistered:      "directory_already_registered",
	DirectoryRegistrationCancelled:  "directory_registration_cancelled",
	FileNotFound:                    "file_not_found",
	FileSizeExceedsLimits:           "file_size_exceeds_limits",
	FileFormatUnsupported:           "file_format_unsupported",
	AbnormalFile:                    "abnormal_file",
	RegistrationFailed:              "registration_failed",
}

var codeFormats = map[Code]string{
	FileRegistrationSuccessful:      "Successfully registered file: %s",
	FileAlreadyRegistered:           "File %s is already registered",
	DirectoryRegistrationSuccessful: "Successfully registered directory: %s",
	DirectoryAlreadyRegistered:      "Directory %s is already registered",
	DirectoryRegistrationCancelled:  "Registration of directory %s was cancelled",
	FileNotFound:                    "File %s was not found",
	FileSizeExceedsLimits:           "File %s exceeds the maximum indexed size",
	FileFormatUnsupported:           "File %s has an unsupported format",
	AbnormalFile:                    "File %s is not a directory or a normal file",
	RegistrationFailed:              "Registration of %s failed",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

// Result is the outcome of Register for one path.
type Result struct {
	Code Code   `json:"code"`
	Path string `json:"path"`
}

// Message renders the user-facing text.
func (r Result) Message() string {
	if format, ok := codeFormats[r.Code]; ok {
		return fmt.Sprintf(format, r.Path)
	}
	return r.Path
}

// Succeeded reports whether the path is now registered by this call.
func (r Result) Succeeded() bool {
	return r.Code == FileRegistrationSuccessful || r.Code == DirectoryRegistrationSuccessful
}

// UnregistrationCode identifies the outcome of an unregistration.
type UnregistrationCode int

const (
	FileUnregistrationSuccessful UnregistrationCode = iota + 1
	DirectoryUnregistrationSuccessful
	NotRegistered
)

func (c UnregistrationCode) String() string {
	switch c {
	case FileUnregistrationSuccessful:
		return "file_unregistration_successful"
	case DirectoryUnregistrationSuccessful:
		return "directory_unregistration_successful"
	case NotRegistered:
		return "not_registered"
	default:
		return "unknown"
	}
}

// UnregistrationResult is the outcome of Unregister for one path.
type UnregistrationResult struct {
	Code UnregistrationCode `json:"code"`
	Path string             `json:"path"`
}

// Message renders the user-facing text.
func (r UnregistrationResult) Message() string {
	switch r.Code {
	case FileUnregistrationSuccessful:
		return fmt.Sprintf("Successfully unregistered file: %s", r.Path)
	case DirectoryUnregistrationSuccessful:
		return fmt.Sprintf("Successfully unregistered directory: %s", r.Path)
	case NotRegistered:
		return fmt.Sprintf("File/directory %s is not registered", r.Path)
	default:
		return r.Path
	}
}

// Succeeded reports whether the path was unregistered.
func (r UnregistrationResult) Succeeded() bool {
	return r.Code != NotRegistered
}
