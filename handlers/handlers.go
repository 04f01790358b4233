package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"retail-bank/auth"
	"retail-bank/ledger"
	"retail-bank/models"
	"retail-bank/statement"
)

const profileRecent = 10

type Handler struct {
	ledger *ledger.Ledger
	secret []byte
	ttl    time.Duration
	log    zerolog.Logger
}

func New(l *ledger.Ledger, secret []byte, ttl time.Duration, log zerolog.Logger) *Handler {
	return &Handler{ledger: l, secret: secret, ttl: ttl, log: log}
}

// Router mounts the public endpoints at the root and everything else under
// /api behind bearer token verification.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")

	s := r.PathPrefix("/api").Subrouter()
	s.Use(auth.VerifyToken(h.secret))

	s.HandleFunc("/profile", h.Profile).Methods("GET")
	s.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	s.HandleFunc("/accounts/{iban}/transactions", h.AccountTransactions).Methods("GET")
	s.HandleFunc("/transfer", h.Transfer).Methods("POST")
	s.HandleFunc("/pay", h.Pay).Methods("POST")
	s.HandleFunc("/reset", h.Reset).Methods("POST")
	s.HandleFunc("/transactions", h.Transactions).Methods("GET")
	s.HandleFunc("/billers", h.Billers).Methods("GET")
	s.HandleFunc("/statement", h.Statement).Methods("GET")
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// amountText accepts an amount as a JSON string ("1.250,00") or number.
type amountText string

func (a *amountText) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amountText(s)
		return nil
	}
	if string(b) == "null" {
		*a = ""
		return nil
	}
	*a = amountText(b)
	return nil
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName    string `json:"full_name"`
		Contact     string `json:"contact"`
		ContactType string `json:"contact_type"`
		Password    string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Password == "" {
		h.fail(w, ledger.ErrInvalidProfile)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.fail(w, err)
		return
	}
	user, err := h.ledger.Register(r.Context(), ledger.Registration{
		FullName:     req.FullName,
		Contact:      req.Contact,
		ContactType:  req.ContactType,
		PasswordHash: hash,
	})
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Registration Successful",
		"user":    public(user),
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Contact  string `json:"contact"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	user, err := h.ledger.LookupContact(r.Context(), req.Contact)
	if errors.Is(err, ledger.ErrUnknownUser) || (err == nil && !auth.CheckPassword(user.PasswordHash, req.Password)) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "unauthorized", Message: "invalid contact or password"})
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}

	token, err := auth.Issue(h.secret, user.ID, h.ttl)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Login successful",
		"token":   token,
		"user":    public(user),
	})
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.ledger.Profile(r.Context(), userID(r), profileRecent)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, public(user))
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	// The body is optional; without one the account gets a default name.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "invalid_request", Message: err.Error()})
		return
	}
	account, err := h.ledger.AllocateAccount(r.Context(), userID(r), req.Name)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source      string     `json:"source"`
		Destination string     `json:"destination"`
		Amount      amountText `json:"amount"`
		Description string     `json:"description"`
		Channel     string     `json:"channel"`
	}
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.ledger.Transfer(r.Context(), userID(r), ledger.TransferRequest{
		Source:      req.Source,
		Destination: req.Destination,
		Amount:      string(req.Amount),
		Description: req.Description,
		Channel:     req.Channel,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Biller     string     `json:"biller"`
		CustomerNo string     `json:"customer_no"`
		Amount     amountText `json:"amount"`
		Autopay    bool       `json:"autopay"`
	}
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.ledger.PayBiller(r.Context(), userID(r), ledger.PaymentRequest{
		Biller:     req.Biller,
		CustomerNo: req.CustomerNo,
		Amount:     string(req.Amount),
		Autopay:    req.Autopay,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	user, err := h.ledger.Reset(r.Context(), userID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Demo data reset",
		"user":    public(user),
	})
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	entries, err := h.ledger.ListTransactions(r.Context(), userID(r), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) AccountTransactions(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	entries, err := h.ledger.AccountTransactions(r.Context(), userID(r), mux.Vars(r)["iban"], limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) Billers(w http.ResponseWriter, r *http.Request) {
	billers, err := h.ledger.Billers(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, billers)
}

func (h *Handler) Statement(w http.ResponseWriter, r *http.Request) {
	format, err := statement.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "invalid_request", Message: err.Error()})
		return
	}
	user, err := h.ledger.Profile(r.Context(), userID(r), statement.Entries)
	if err != nil {
		h.fail(w, err)
		return
	}

	var buf bytes.Buffer
	if err := statement.Write(&buf, format, user.FullName, user.Transactions); err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+format.Filename()+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// fail maps a ledger error to its HTTP status and error body.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	kind := ledger.Kind(err)
	status := statusFor(kind)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("kind", kind).Msg("request failed")
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Code: kind, Message: message})
}

func statusFor(kind string) int {
	switch kind {
	case "invalid_destination", "invalid_amount", "same_account_transfer", "invalid_profile":
		return http.StatusBadRequest
	case "unknown_user", "unknown_account":
		return http.StatusNotFound
	case "insufficient_funds", "persistence_conflict", "contact_taken":
		return http.StatusConflict
	case "storage_unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func userID(r *http.Request) int64 {
	id, _ := auth.UserID(r.Context())
	return id
}

func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "invalid_request", Message: "limit must be a non-negative integer"})
		return 0, false
	}
	return limit, true
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "invalid_request", Message: err.Error()})
		return false
	}
	return true
}

// public strips credentials before a user leaves the process.
func public(u *models.User) *models.User {
	out := *u
	out.PasswordHash = ""
	return &out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
