package returns

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	returnsdto "github.com/angelmondragon/storefront-backend/api/controllers/returns/dto"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/returns"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	reasonMaxLen     = 2000
	formOverhead     = 1 << 20
	imageFieldPrefix = "images["
)

// DraftEditor loads and changes return drafts.
type DraftEditor interface {
	Enter(ctx context.Context, draftID string) ([]returns.DraftItem, error)
	Add(ctx context.Context, draftID string, item returns.OrderItem) ([]returns.DraftItem, error)
	Remove(ctx context.Context, draftID, productID string) ([]returns.DraftItem, error)
	SetQuantity(ctx context.Context, draftID, productID string, qty int) ([]returns.DraftItem, error)
	Increment(ctx context.Context, draftID, productID string) ([]returns.DraftItem, error)
	Decrement(ctx context.Context, draftID, productID string) ([]returns.DraftItem, error)
	AttachImage(ctx context.Context, draftID, productID string, image *returns.ProofImage) ([]returns.DraftItem, error)
	Clear(ctx context.Context, draftID string) error
}

// Limits bounds the multipart submission.
type Limits struct {
	MaxImageBytes int64
	MaxItems      int
}

// DraftFetch loads the order's return draft.
func DraftFetch(drafts DraftEditor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, draftID, err := draftRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := drafts.Enter(r.Context(), draftID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, returnsdto.Draft{OrderID: orderID, Items: items})
	}
}

// DraftClear discards the order's return draft.
func DraftClear(drafts DraftEditor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, draftID, err := draftRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := drafts.Clear(r.Context(), draftID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

// DraftAddItem marks an item for return with its full purchased quantity.
func DraftAddItem(drafts DraftEditor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, draftID, err := draftRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload returnsdto.AddItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := drafts.Add(r.Context(), draftID, returns.OrderItem{
			ItemID:    strings.TrimSpace(payload.ItemID),
			ProductID: strings.TrimSpace(payload.ProductID),
			Quantity:  payload.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, returnsdto.Draft{OrderID: orderID, Items: items})
	}
}

// DraftUpdateItem adjusts the quantity or proof image of a drafted item.
func DraftUpdateItem(drafts DraftEditor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, draftID, err := draftRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.URLParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload returnsdto.UpdateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := applyUpdate(r.Context(), drafts, draftID, productID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !returns.Contains(items, productID) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "item is not in the return draft"))
			return
		}
		responses.WriteSuccess(w, returnsdto.Draft{OrderID: orderID, Items: items})
	}
}

func applyUpdate(ctx context.Context, drafts DraftEditor, draftID, productID string, payload returnsdto.UpdateItemRequest) ([]returns.DraftItem, error) {
	items, err := drafts.Enter(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if !returns.Contains(items, productID) {
		return items, nil
	}
	if payload.Quantity != nil {
		if items, err = drafts.SetQuantity(ctx, draftID, productID, *payload.Quantity); err != nil {
			return nil, err
		}
	}
	switch payload.Step {
	case "increment":
		items, err = drafts.Increment(ctx, draftID, productID)
	case "decrement":
		items, err = drafts.Decrement(ctx, draftID, productID)
	}
	if err != nil {
		return nil, err
	}
	switch {
	case payload.ClearImage:
		items, err = drafts.AttachImage(ctx, draftID, productID, nil)
	case payload.ProofImage != nil:
		items, err = drafts.AttachImage(ctx, draftID, productID, payload.ProofImage)
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

// DraftRemoveItem unmarks an item.
func DraftRemoveItem(drafts DraftEditor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, draftID, err := draftRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.URLParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := drafts.Remove(r.Context(), draftID, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, returnsdto.Draft{OrderID: orderID, Items: items})
	}
}

// Submit sends the drafted items as a return request. The multipart body carries the
// reason and one optional "images[<productId>]" file per item. The draft is cleared only
// after the backend accepts the request.
func Submit(drafts DraftEditor, svc returns.Service, limits Limits, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, draftID, err := draftRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := drafts.Enter(r.Context(), draftID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if len(items) == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "select at least one item to return"))
			return
		}

		reason, images, err := readForm(w, r, limits, len(items))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if reason == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "return reason is required").WithDetails(map[string]any{"field": "reason"}))
			return
		}

		cred := middleware.CredentialFromContext(r.Context())
		receipt, err := svc.Submit(r.Context(), cred, returns.BuildSubmission(orderID, reason, items, images))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := drafts.Clear(r.Context(), draftID); err != nil && logg != nil {
			logg.Warn(logg.WithFields(logg.WithOrderID(r.Context(), orderID), map[string]any{
				"error": err.Error(),
			}), "return submitted but draft not cleared")
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, returnsdto.Submitted{OrderID: orderID, RequestID: receipt.RequestID})
	}
}

func readForm(w http.ResponseWriter, r *http.Request, limits Limits, itemCount int) (string, map[string]returns.Image, error) {
	images := map[string]returns.Image{}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseForm(); err != nil {
			return "", nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid form body")
		}
		return validators.SanitizeString(r.PostFormValue("reason"), reasonMaxLen), images, nil
	}

	if limits.MaxImageBytes > 0 {
		slots := int64(itemCount)
		if limits.MaxItems > 0 && int64(limits.MaxItems) < slots {
			slots = int64(limits.MaxItems)
		}
		r.Body = http.MaxBytesReader(w, r.Body, slots*limits.MaxImageBytes+formOverhead)
	}
	if err := r.ParseMultipartForm(formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "upload is too large")
		}
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body")
	}

	for field, headers := range r.MultipartForm.File {
		productID, ok := imageProductID(field)
		if !ok || len(headers) == 0 {
			continue
		}
		header := headers[0]
		if limits.MaxImageBytes > 0 && header.Size > limits.MaxImageBytes {
			return "", nil, pkgerrors.New(pkgerrors.CodeValidation, "proof image is too large").WithDetails(map[string]any{
				"field":     field,
				"max_bytes": limits.MaxImageBytes,
			})
		}
		file, err := header.Open()
		if err != nil {
			return "", nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read proof image")
		}
		data, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			return "", nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read proof image")
		}
		images[productID] = returns.Image{FileName: header.Filename, Data: data}
	}
	return validators.SanitizeString(r.FormValue("reason"), reasonMaxLen), images, nil
}

func imageProductID(field string) (string, bool) {
	if !strings.HasPrefix(field, imageFieldPrefix) || !strings.HasSuffix(field, "]") {
		return "", false
	}
	id := strings.TrimSpace(field[len(imageFieldPrefix) : len(field)-1])
	return id, id != ""
}

// draftRef resolves the order id and the owner-scoped id the draft is stored under. The
// owner is the credential's scope: the token subject is unverified here and cannot own state.
func draftRef(r *http.Request) (string, string, error) {
	orderID, err := validators.URLParam(r, "orderId")
	if err != nil {
		return "", "", err
	}
	cred := middleware.CredentialFromContext(r.Context())
	if cred.Empty() {
		return "", "", pkgerrors.New(pkgerrors.CodeUnauthorized, "returns require sign in")
	}
	return orderID, cred.Scope() + ":" + orderID, nil
}
