package errors

import (
	stderrors "errors"

	"github.com/louisbranch/outputinfo/internal/platform/errors/i18n"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultLocale is used when a request carries no locale preference.
const DefaultLocale = i18n.BaseLocale

// HandleError converts err into a gRPC status error. Domain errors carry
// ErrorInfo and a message localized for locale; status errors pass through;
// anything else becomes Internal.
func HandleError(err error, locale string) error {
	if err == nil {
		return nil
	}
	var domainErr *Error
	if stderrors.As(err, &domainErr) {
		catalog := i18n.GetCatalog(locale)
		return domainErr.ToGRPCStatus(catalog.Locale(), catalog.Format(string(domainErr.Code), domainErr.Metadata))
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Internal, err.Error())
}
