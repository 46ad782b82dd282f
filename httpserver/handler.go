package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/keyfold/wallet-custody-backend/custody"
	"github.com/keyfold/wallet-custody-backend/interfaces"
	"github.com/keyfold/wallet-custody-backend/metrics"
	"github.com/keyfold/wallet-custody-backend/session"
)

const (
	// SessionHeader carries the session ID issued at login.
	SessionHeader = "X-Session-ID"

	// maxBodySize is the maximum allowed request body size (1MB).
	maxBodySize = 1024 * 1024
)

// Handler processes HTTP requests for the custody service. It resolves the
// session header through the session controller, dispatches to the custody
// manager, and maps the error taxonomy onto HTTP status codes.
type Handler struct {
	custody    *custody.Manager
	sessions   *session.Controller
	recoveries *session.RecoveryTracker
	log        *slog.Logger
}

// NewHandler creates an HTTP request handler with the specified dependencies.
func NewHandler(manager *custody.Manager, sessions *session.Controller, recoveries *session.RecoveryTracker, log *slog.Logger) *Handler {
	return &Handler{
		custody:    manager,
		sessions:   sessions,
		recoveries: recoveries,
		log:        log,
	}
}

type loginRequest struct {
	ProofToken string `json:"proof_token"`
}

type loginResponse struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandleLogin verifies an identity proof and opens a session.
//
// URL format: POST /api/session
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		return
	}
	if req.ProofToken == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("missing proof_token"))
		return
	}

	sess, err := h.sessions.Login(r.Context(), req.ProofToken)
	if err != nil {
		metrics.SessionLoginsTotal.WithLabelValues("rejected").Inc()
		h.writeError(w, http.StatusUnauthorized, err)
		return
	}
	metrics.SessionLoginsTotal.WithLabelValues("ok").Inc()

	h.writeJSON(w, http.StatusOK, loginResponse{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		ExpiresAt: sess.ExpiresAt,
	})
}

// HandleLogout revokes the session named in the session header. Idempotent.
//
// URL format: DELETE /api/session
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("missing session header"))
		return
	}

	h.sessions.Revoke(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

type createWalletRequest struct {
	PIN string `json:"pin"`
}

type createWalletResponse struct {
	WalletID     string         `json:"wallet_id"`
	Address      common.Address `json:"address"`
	RecoveryCode string         `json:"recovery_code"`
	CreatedAt    time.Time      `json:"created_at"`
}

// HandleCreateWallet generates a new wallet for the authenticated session.
// The recovery code in the response is shown exactly once and never stored.
//
// URL format: POST /api/wallet
func (h *Handler) HandleCreateWallet(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.resolveSession(w, r)
	if !ok {
		return
	}

	var req createWalletRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		return
	}

	start := time.Now()
	result, err := h.custody.CreateWallet(r.Context(), sess, []byte(req.PIN))
	metrics.OperationDuration.WithLabelValues("create_wallet").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.WalletCreatesTotal.WithLabelValues("error").Inc()
		h.writeCustodyError(w, err)
		return
	}
	metrics.WalletCreatesTotal.WithLabelValues("ok").Inc()

	h.writeJSON(w, http.StatusCreated, createWalletResponse{
		WalletID:     result.WalletID.String(),
		Address:      result.Address,
		RecoveryCode: result.RecoveryCode,
		CreatedAt:    result.CreatedAt,
	})
}

type walletResponse struct {
	WalletID  string         `json:"wallet_id"`
	Address   common.Address `json:"address"`
	CreatedAt time.Time      `json:"created_at"`
}

// HandleGetWallet returns the public record for a wallet.
//
// URL format: GET /api/wallet/{wallet_id}
func (h *Handler) HandleGetWallet(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.resolveSession(w, r); !ok {
		return
	}

	walletID, ok := h.walletID(w, r)
	if !ok {
		return
	}

	wallet, err := h.custody.Wallet(r.Context(), walletID)
	if err != nil {
		h.writeCustodyError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, walletResponse{
		WalletID:  wallet.WalletID.String(),
		Address:   wallet.PublicAddress,
		CreatedAt: wallet.CreatedAt,
	})
}

type signRequest struct {
	PIN  string        `json:"pin"`
	Kind string        `json:"kind"`
	Data hexutil.Bytes `json:"data"`
}

type signResponse struct {
	Signature hexutil.Bytes  `json:"signature"`
	Digest    hexutil.Bytes  `json:"digest"`
	Address   common.Address `json:"address"`
}

// HandleSign signs a payload with the wallet's reconstructed key.
//
// URL format: POST /api/wallet/{wallet_id}/sign
//
// The payload kind selects digesting: "hash" for a pre-computed 32-byte
// digest, "personal" for an EIP-191 prefixed message, "typed" for
// codec-digested typed data.
func (h *Handler) HandleSign(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.resolveSession(w, r)
	if !ok {
		return
	}

	walletID, ok := h.walletID(w, r)
	if !ok {
		return
	}

	var req signRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		return
	}

	start := time.Now()
	result, err := h.custody.Sign(r.Context(), sess, walletID, []byte(req.PIN), &interfaces.SignRequest{
		Kind: interfaces.PayloadKind(req.Kind),
		Data: req.Data,
	})
	metrics.OperationDuration.WithLabelValues("sign").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, interfaces.ErrInvalidPin) {
			metrics.InvalidPinTotal.Inc()
		}
		metrics.SignsTotal.WithLabelValues("error").Inc()
		h.writeCustodyError(w, err)
		return
	}
	metrics.SignsTotal.WithLabelValues("ok").Inc()

	h.writeJSON(w, http.StatusOK, signResponse{
		Signature: result.Signature,
		Digest:    result.Digest,
		Address:   result.Address,
	})
}

type recoverRequest struct {
	RecoveryCode string `json:"recovery_code"`
	NewPIN       string `json:"new_pin"`
}

type recoverResponse struct {
	WalletID     string         `json:"wallet_id"`
	Address      common.Address `json:"address"`
	RecoveryCode string         `json:"recovery_code"`
}

// HandleRecover runs the new-device recovery flow: the recovery code plus the
// server share rebuild the key, which is re-split under the new PIN. The
// response carries the replacement recovery code.
//
// URL format: POST /api/wallet/{wallet_id}/recover
func (h *Handler) HandleRecover(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.resolveSession(w, r)
	if !ok {
		return
	}

	walletID, ok := h.walletID(w, r)
	if !ok {
		return
	}

	var req recoverRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		return
	}

	if _, err := h.recoveries.Begin(walletID); err != nil {
		h.writeCustodyError(w, err)
		return
	}

	start := time.Now()
	result, err := h.custody.Recover(r.Context(), sess, walletID, req.RecoveryCode, []byte(req.NewPIN))
	metrics.OperationDuration.WithLabelValues("recover").Observe(time.Since(start).Seconds())
	if err != nil {
		h.recoveries.Finish(walletID, interfaces.RecoveryFailed)
		metrics.RecoveriesTotal.WithLabelValues("error").Inc()
		h.writeCustodyError(w, err)
		return
	}
	h.recoveries.Finish(walletID, interfaces.RecoveryCompleted)
	metrics.RecoveriesTotal.WithLabelValues("ok").Inc()

	h.writeJSON(w, http.StatusOK, recoverResponse{
		WalletID:     result.WalletID.String(),
		Address:      result.Address,
		RecoveryCode: result.RecoveryCode,
	})
}

// HandleRecoveryStatus reports the latest recovery request for a wallet.
//
// URL format: GET /api/wallet/{wallet_id}/recovery
func (h *Handler) HandleRecoveryStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.resolveSession(w, r); !ok {
		return
	}

	walletID, ok := h.walletID(w, r)
	if !ok {
		return
	}

	request := h.recoveries.Status(walletID)
	if request == nil {
		h.writeError(w, http.StatusNotFound, errors.New("no recovery recorded for wallet"))
		return
	}
	h.writeJSON(w, http.StatusOK, request)
}

// resolveSession authenticates the request from the session header. On
// failure the response is already written.
func (h *Handler) resolveSession(w http.ResponseWriter, r *http.Request) (*interfaces.Session, bool) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		h.writeError(w, http.StatusUnauthorized, errors.New("missing session header"))
		return nil, false
	}

	sess, err := h.sessions.Resolve(sessionID)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, err)
		return nil, false
	}
	return sess, true
}

func (h *Handler) walletID(w http.ResponseWriter, r *http.Request) (interfaces.WalletID, bool) {
	walletID, err := interfaces.ParseWalletID(r.PathValue("wallet_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return "", false
	}
	return walletID, true
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("malformed request body"))
		return err
	}
	return nil
}

// writeCustodyError maps the custody error taxonomy onto HTTP status codes.
// Authentication-ish failures stay deliberately vague in the body.
func (h *Handler) writeCustodyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interfaces.ErrSessionExpired), errors.Is(err, interfaces.ErrSessionRevoked):
		h.writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, interfaces.ErrInvalidPin):
		h.writeError(w, http.StatusForbidden, interfaces.ErrInvalidPin)
	case errors.Is(err, interfaces.ErrInvalidRecoveryCode):
		h.writeError(w, http.StatusForbidden, interfaces.ErrInvalidRecoveryCode)
	case errors.Is(err, interfaces.ErrWalletNotFound):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, interfaces.ErrShareUnavailable):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, interfaces.ErrRecoveryConflict):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, interfaces.ErrCrypto):
		h.writeError(w, http.StatusBadRequest, err)
	default:
		h.log.Error("custody operation failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
