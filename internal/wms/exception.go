package wms

import (
	"bytes"
	"encoding/xml"
	"errors"

	"go.ngs.io/wms-api/internal/domain"
	"go.ngs.io/wms-api/internal/render"
)

// Code is a WMS service exception code.
type Code string

const (
	CodeGeneric               Code = ""
	CodeLayerNotDefined       Code = "LayerNotDefined"
	CodeStyleNotDefined       Code = "StyleNotDefined"
	CodeInvalidDimensionValue Code = "InvalidDimensionValue"
	CodeInvalidFormat         Code = "InvalidFormat"
	CodeInvalidCRS            Code = "InvalidCRS"
	CodeOperationNotSupported Code = "OperationNotSupported"
	CodeServiceNotDefined     Code = "ServiceNotDefined"
	CodeMissingParameterValue Code = "MissingParameterValue"
	CodeInvalidParameterValue Code = "InvalidParameterValue"
)

// Content types of exception reports.
const (
	ContentType111 = "application/vnd.ogc.se_xml"
	ContentType130 = "text/xml"
)

const doctype111 = `<!DOCTYPE ServiceExceptionReport SYSTEM "http://schemas.opengis.net/wms/1.1.1/exception_1_1_1.dtd">` + "\n"

// Exception is an error reported to WMS clients.
type Exception struct {
	Code    Code
	Message string
}

func (e *Exception) Error() string {
	if e.Code == CodeGeneric {
		return e.Message
	}
	return string(e.Code) + ": " + e.Message
}

// FromError classifies err into an exception code.
func FromError(err error) *Exception {
	var (
		exc        *Exception
		layerErr   *domain.LayerNotDefinedError
		styleErr   *domain.StyleNotDefinedError
		dimErr     *domain.InvalidDimensionError
		fieldErr   *domain.FieldNotFoundError
		formatErr  *render.UnsupportedFormatError
		crsErr     *render.UnsupportedCRSError
		opErr      *OperationNotSupportedError
		serviceErr *ServiceNotDefinedError
		missingErr *MissingParameterError
		invalidErr *InvalidParameterError
	)
	code := CodeGeneric
	switch {
	case errors.As(err, &exc):
		return exc
	case errors.As(err, &layerErr), errors.Is(err, domain.ErrAliasCycle):
		code = CodeLayerNotDefined
	case errors.As(err, &styleErr):
		code = CodeStyleNotDefined
	case errors.As(err, &dimErr), errors.As(err, &fieldErr):
		code = CodeInvalidDimensionValue
	case errors.As(err, &formatErr):
		code = CodeInvalidFormat
	case errors.As(err, &crsErr):
		code = CodeInvalidCRS
	case errors.As(err, &opErr):
		code = CodeOperationNotSupported
	case errors.As(err, &serviceErr):
		code = CodeServiceNotDefined
	case errors.As(err, &missingErr):
		code = CodeMissingParameterValue
	case errors.As(err, &invalidErr):
		code = CodeInvalidParameterValue
	}
	return &Exception{Code: code, Message: err.Error()}
}

// codeFor returns the code as named by the protocol version.
func (e *Exception) codeFor(version string) string {
	if e.Code == CodeInvalidCRS && version == Version111 {
		return "InvalidSRS"
	}
	return string(e.Code)
}

type serviceException struct {
	Code    string `xml:"code,attr,omitempty"`
	Message string `xml:",cdata"`
}

type report111 struct {
	XMLName    xml.Name           `xml:"ServiceExceptionReport"`
	Version    string             `xml:"version,attr"`
	Exceptions []serviceException `xml:"ServiceException"`
}

type report130 struct {
	XMLName        xml.Name           `xml:"ServiceExceptionReport"`
	Version        string             `xml:"version,attr"`
	Xmlns          string             `xml:"xmlns,attr"`
	Xsi            string             `xml:"xmlns:xsi,attr"`
	SchemaLocation string             `xml:"xsi:schemaLocation,attr"`
	Exceptions     []serviceException `xml:"ServiceException"`
}

// Report renders the exception report for version and returns its content
// type and body.
func (e *Exception) Report(version string) (string, []byte, error) {
	exc := []serviceException{{Code: e.codeFor(version), Message: e.Message}}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	var doc any
	contentType := ContentType130
	if version == Version111 {
		buf.WriteString(doctype111)
		doc = report111{Version: Version111, Exceptions: exc}
		contentType = ContentType111
	} else {
		doc = report130{
			Version:        Version130,
			Xmlns:          "http://www.opengis.net/ogc",
			Xsi:            "http://www.w3.org/2001/XMLSchema-instance",
			SchemaLocation: "http://www.opengis.net/ogc http://schemas.opengis.net/wms/1.3.0/exceptions_1_3_0.xsd",
			Exceptions:     exc,
		}
	}
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", nil, err
	}
	return contentType, buf.Bytes(), nil
}
