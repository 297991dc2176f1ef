package returns

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/backend"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	requestReturnPath = "returns/request-return"

	msgSubmitFailed = "could not submit return request"
)

// Image is the proof photo uploaded with an item.
type Image struct {
	FileName string
	Data     []byte
}

// SubmissionItem is a finalised item of a return request.
type SubmissionItem struct {
	ItemID   string
	Quantity int
	Image    *Image
}

// Submission is built once at submit time and never stored.
type Submission struct {
	OrderID string
	Reason  string
	Items   []SubmissionItem
}

// BuildSubmission resolves the draft into a submission. Quantities are capped to the
// purchased quantity; images are matched by product id.
func BuildSubmission(orderID, reason string, items []DraftItem, images map[string]Image) Submission {
	sub := Submission{
		OrderID: strings.TrimSpace(orderID),
		Reason:  strings.TrimSpace(reason),
		Items:   make([]SubmissionItem, 0, len(items)),
	}
	for _, it := range items {
		item := SubmissionItem{
			ItemID:   firstNonEmpty(it.ItemID, it.ProductID),
			Quantity: clamp(it.Quantity, it.OriginalQuantity),
		}
		if img, ok := images[it.ProductID]; ok && len(img.Data) > 0 {
			copied := img
			item.Image = &copied
		}
		sub.Items = append(sub.Items, item)
	}
	return sub
}

// Receipt acknowledges an accepted return request.
type Receipt struct {
	RequestID string `json:"request_id,omitempty"`
}

// Service sends return requests to the backend. It knows nothing about drafts: callers
// clear the draft once Submit succeeds.
type Service interface {
	Submit(ctx context.Context, cred auth.Credential, sub Submission) (Receipt, error)
}

type backendDoer interface {
	Do(ctx context.Context, req backend.Request) (*backend.Response, error)
}

type service struct {
	backend       backendDoer
	maxImageBytes int64
	logg          *logger.Logger
}

// NewService builds the return submission service. maxImageBytes of zero disables the
// per-image size check.
func NewService(client backendDoer, maxImageBytes int64, logg *logger.Logger) (Service, error) {
	if client == nil {
		return nil, errors.New("backend client required")
	}
	return &service{backend: client, maxImageBytes: maxImageBytes, logg: logg}, nil
}

func (s *service) Submit(ctx context.Context, cred auth.Credential, sub Submission) (Receipt, error) {
	if cred.Empty() {
		return Receipt{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "returns require sign in")
	}
	body, contentType, err := s.encode(sub)
	if err != nil {
		return Receipt{}, err
	}

	resp, err := s.backend.Do(ctx, backend.Request{
		Operation:   "returns.request_return",
		Method:      http.MethodPost,
		Path:        requestReturnPath,
		Credential:  cred,
		Body:        body,
		ContentType: contentType,
	})
	if err != nil {
		s.logFailure(ctx, sub.OrderID, err)
		code := pkgerrors.CodeDependency
		if backend.IsTimeout(err) {
			code = pkgerrors.CodeTimeout
		}
		return Receipt{}, pkgerrors.Wrap(code, err, msgSubmitFailed)
	}
	if !resp.OK() || rejectedInBody(resp.Body) {
		err := replyError(resp)
		s.logFailure(ctx, sub.OrderID, err)
		return Receipt{}, err
	}
	return Receipt{RequestID: requestID(resp.Body)}, nil
}

// encode writes the multipart form the backend expects:
//
//	order_id, reason
//	items[i][item_id], items[i][quantity], items[i][image] (file, optional)
func (s *service) encode(sub Submission) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	form := multipart.NewWriter(buf)

	fields := [][2]string{{"order_id", sub.OrderID}, {"reason", sub.Reason}}
	for i, it := range sub.Items {
		fields = append(fields,
			[2]string{fmt.Sprintf("items[%d][item_id]", i), it.ItemID},
			[2]string{fmt.Sprintf("items[%d][quantity]", i), strconv.Itoa(it.Quantity)},
		)
	}
	for _, f := range fields {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode return request")
		}
	}

	for i, it := range sub.Items {
		if it.Image == nil {
			continue
		}
		if err := s.writeImage(form, fmt.Sprintf("items[%d][image]", i), *it.Image); err != nil {
			return nil, "", err
		}
	}
	if err := form.Close(); err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode return request")
	}
	return buf, form.FormDataContentType(), nil
}

func (s *service) writeImage(form *multipart.Writer, field string, img Image) error {
	if s.maxImageBytes > 0 && int64(len(img.Data)) > s.maxImageBytes {
		return pkgerrors.New(pkgerrors.CodeValidation, "proof image is too large").WithDetails(map[string]any{
			"field":     field,
			"max_bytes": s.maxImageBytes,
		})
	}
	detected := mimetype.Detect(img.Data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return pkgerrors.New(pkgerrors.CodeValidation, "proof must be an image").WithDetails(map[string]any{
			"field":        field,
			"content_type": detected.String(),
		})
	}
	name := strings.TrimSpace(img.FileName)
	if name == "" {
		name = "proof" + detected.Extension()
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(field), escapeQuotes(name)))
	header.Set("Content-Type", detected.String())
	part, err := form.CreatePart(header)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode return request")
	}
	if _, err := part.Write(img.Data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode return request")
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func (s *service) logFailure(ctx context.Context, orderID string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(s.logg.WithOrderID(ctx, orderID), map[string]any{
		"error": err.Error(),
	}), "return submission failed")
}

func replyError(resp *backend.Response) error {
	if resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "returns require sign in")
	}
	upstream := &pkgerrors.UpstreamError{Status: resp.Status, Message: backend.Message(resp.Body)}
	if upstream.Message != "" {
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, upstream, upstream.Message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, upstream, msgSubmitFailed)
}

func rejectedInBody(body []byte) bool {
	var flags struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(body, &flags); err != nil {
		return false
	}
	return flags.Success != nil && !*flags.Success
}

func requestID(body []byte) string {
	var reply struct {
		ID              types.FlexString `json:"id"`
		ReturnRequestID types.FlexString `json:"return_request_id"`
		Data            *struct {
			ID              types.FlexString `json:"id"`
			ReturnRequestID types.FlexString `json:"return_request_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return ""
	}
	candidates := []string{reply.ReturnRequestID.String(), reply.ID.String()}
	if reply.Data != nil {
		candidates = append([]string{reply.Data.ReturnRequestID.String(), reply.Data.ID.String()}, candidates...)
	}
	return firstNonEmpty(candidates...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
