package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type PartyDTO struct {
	Name   string  `json:"name" validate:"required,max=120"`
	Mobile string  `json:"mobile" validate:"required,max=20"`
	Email  *string `json:"email,omitempty" validate:"omitempty,email"`
}

type ParcelDTO struct {
	Quantity int              `json:"quantity" validate:"gt=0"`
	Category string           `json:"category" validate:"required"`
	Rate     decimal.Decimal  `json:"rate"`
	Weight   *decimal.Decimal `json:"weight,omitempty"`
}

type CostsDTO struct {
	Freight  decimal.Decimal `json:"freight"`
	Handling decimal.Decimal `json:"handling"`
	Hamali   decimal.Decimal `json:"hamali"`
}

type CreateBookingRequest struct {
	OriginBranch      string      `json:"originBranch" validate:"required"`
	DestinationBranch string      `json:"destinationBranch" validate:"required"`
	Sender            PartyDTO    `json:"sender"`
	Receiver          PartyDTO    `json:"receiver"`
	Parcels           []ParcelDTO `json:"parcels" validate:"required,min=1,dive"`
	Costs             CostsDTO    `json:"costs"`
	PaymentType       string      `json:"paymentType" validate:"required"`
}

type UpdateBookingRequest struct {
	Sender          PartyDTO    `json:"sender"`
	Receiver        PartyDTO    `json:"receiver"`
	Parcels         []ParcelDTO `json:"parcels" validate:"required,min=1,dive"`
	Costs           CostsDTO    `json:"costs"`
	PaymentType     string      `json:"paymentType" validate:"required"`
	ExpectedVersion *int64      `json:"expectedVersion,omitempty" validate:"omitempty,gt=0"`
}

type UpdateStatusRequest struct {
	Status            string `json:"status" validate:"required"`
	Remark            string `json:"remark,omitempty" validate:"max=500"`
	CollectedBy       string `json:"collectedBy,omitempty" validate:"max=120"`
	CollectedByMobile string `json:"collectedByMobile,omitempty" validate:"max=20"`
	ExpectedVersion   *int64 `json:"expectedVersion,omitempty" validate:"omitempty,gt=0"`
}

type ReverseRequest struct {
	Note string `json:"note,omitempty" validate:"max=500"`
}

type CounterOverrideRequest struct {
	Value int64 `json:"value" validate:"gt=0"`
}

type StatusResponse struct {
	Booking           *models.Booking           `json:"booking"`
	LedgerTransaction *models.LedgerTransaction `json:"ledgerTransaction,omitempty"`
}

type CounterOverrideResponse struct {
	Key      string `json:"key"`
	Previous int64  `json:"previous"`
	Value    int64  `json:"value"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// Failures come back as *models.ValidationError keyed by JSON path.
func decodeAndValidate(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		ve := models.NewValidationError()
		ve.Add("body", "malformed JSON: "+err.Error())
		return ve
	}
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var fe validator.ValidationErrors
	if !errors.As(err, &fe) {
		return errors.Wrap(err, "validate request")
	}
	ve := models.NewValidationError()
	for _, e := range fe {
		ve.Add(fieldPath(e.Namespace()), describe(e))
	}
	return ve
}

// fieldPath drops the root struct name: "CreateBookingRequest.sender.name" -> "sender.name".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s item(s)", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", e.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "email":
		return "must be a valid email"
	}
	return "failed " + e.Tag()
}

func (p PartyDTO) toModel() models.Party {
	return models.Party{Name: strings.TrimSpace(p.Name), Mobile: strings.TrimSpace(p.Mobile), Email: p.Email}
}

func parcelsToModel(in []ParcelDTO) []models.Parcel {
	out := make([]models.Parcel, 0, len(in))
	for _, p := range in {
		cat, ok := models.ParseItemCategory(p.Category)
		if !ok {
			// left raw so model validation reports the offending index
			cat = models.ItemCategory(p.Category)
		}
		out = append(out, models.Parcel{Quantity: p.Quantity, Category: cat, Rate: p.Rate, Weight: p.Weight})
	}
	return out
}

func paymentType(raw string) models.PaymentType {
	if pt, ok := models.ParsePaymentType(raw); ok {
		return pt
	}
	return models.PaymentType(raw)
}

func (req CreateBookingRequest) toDraft() models.BookingDraft {
	return models.BookingDraft{
		OriginBranch:      models.BranchID(strings.ToUpper(strings.TrimSpace(req.OriginBranch))),
		DestinationBranch: models.BranchID(strings.ToUpper(strings.TrimSpace(req.DestinationBranch))),
		Sender:            req.Sender.toModel(),
		Receiver:          req.Receiver.toModel(),
		Parcels:           parcelsToModel(req.Parcels),
		Freight:           req.Costs.Freight,
		Handling:          req.Costs.Handling,
		Hamali:            req.Costs.Hamali,
		PaymentType:       paymentType(req.PaymentType),
	}
}

func (req UpdateBookingRequest) toDetails() models.BookingDetails {
	return models.BookingDetails{
		Sender:      req.Sender.toModel(),
		Receiver:    req.Receiver.toModel(),
		Parcels:     parcelsToModel(req.Parcels),
		Freight:     req.Costs.Freight,
		Handling:    req.Costs.Handling,
		Hamali:      req.Costs.Hamali,
		PaymentType: paymentType(req.PaymentType),
	}
}
