package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/stratagem/internal/compiler"
	"github.com/roach88/stratagem/internal/host"
	"github.com/roach88/stratagem/internal/ir"
	"github.com/roach88/stratagem/internal/metrics"
	"github.com/roach88/stratagem/internal/store"
)

// SubmitRequest is the body of POST /strategies/{address}/{entry}.
type SubmitRequest struct {
	Sender string `json:"sender" validate:"required"`
	// Funds are attached to the transaction, e.g. "100uusk".
	Funds string `json:"funds,omitempty"`
	// Coins are the withdraw amounts.
	Coins string `json:"coins,omitempty"`
	// Nodes or Definition (CUE source) is the replacement graph for update.
	Nodes      json.RawMessage `json:"nodes,omitempty" validate:"required_without=Definition,excluded_with=Definition"`
	Definition string          `json:"definition,omitempty"`
}

// TransactionResponse is the body of GET /transactions/{id}.
type TransactionResponse struct {
	Transaction store.TxRecord        `json:"transaction"`
	Messages    []store.MessageRecord `json:"messages"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	height, at, err := s.chain.Height(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, CodeInternal, err.Error())
		return
	}
	writeOK(w, map[string]any{"height": height, "time": at})
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	strategies, err := s.chain.Strategies(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeOK(w, strategies)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.query(w, r, ir.QueryMsg{Config: &struct{}{}})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	s.query(w, r, ir.QueryMsg{Balances: &struct{}{}})
}

func (s *Server) query(w http.ResponseWriter, r *http.Request, msg ir.QueryMsg) {
	result, err := s.chain.Query(r.Context(), chi.URLParam(r, "address"), msg)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeOK(w, result)
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	rec, msgs, err := s.chain.Transaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeOK(w, TransactionResponse{Transaction: rec, Messages: msgs})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address := chi.URLParam(r, "address")
	entry := chi.URLParam(r, "entry")

	var body SubmitRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	var err error
	if entry == "update" {
		err = s.validate.Struct(body)
	} else {
		err = s.validate.StructExcept(body, "Nodes")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	msg, err := executeMsg(entry, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	funds, err := ir.ParseCoins(body.Funds)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("funds: %v", err))
		return
	}

	sender := body.Sender
	if entry == "execute" && s.keepers[sender] {
		if !s.limiter.Allow() {
			metrics.RecordRateLimited()
			writeError(w, http.StatusTooManyRequests, CodeRateLimited, "keeper execute rate exceeded")
			return
		}
		if sender, err = s.manager(ctx, address); err != nil {
			s.fail(w, err)
			return
		}
		s.logger.Debug("relaying keeper execute", "keeper", body.Sender, "strategy", address, "manager", sender)
	}

	req, err := host.NewRequest(sender, address, msg, funds...)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	receipt, err := s.submit(ctx, req)
	if err != nil {
		status, code := errorStatus(err)
		writeJSON(w, status, Response{
			Status: "error",
			Data:   receipt,
			Error:  &ResponseError{Code: code, Message: err.Error()},
		})
		return
	}
	writeOK(w, receipt)
}

// submit applies req through the chain's Run loop while holding the
// strategy's lock.
func (s *Server) submit(ctx context.Context, req host.Request) (host.Receipt, error) {
	lockCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.lockWait > 0 {
		lockCtx, cancel = context.WithTimeout(ctx, s.lockWait)
	}
	unlock, err := s.locker.Lock(lockCtx, req.Contract, s.lockTTL)
	cancel()
	if err != nil {
		return host.Receipt{}, fmt.Errorf("strategy %s is busy: %w", req.Contract, err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release strategy lock", "strategy", req.Contract, "err", err)
		}
	}()

	done, err := s.chain.Enqueue(req)
	if err != nil {
		return host.Receipt{}, err
	}
	select {
	case res := <-done:
		return res.Receipt, res.Err
	case <-ctx.Done():
		return host.Receipt{}, ctx.Err()
	}
}

// manager returns the manager of the strategy at address.
func (s *Server) manager(ctx context.Context, address string) (string, error) {
	result, err := s.chain.Query(ctx, address, ir.QueryMsg{Config: &struct{}{}})
	if err != nil {
		return "", err
	}
	cfg, ok := result.(ir.ConfigResponse)
	if !ok {
		return "", fmt.Errorf("config of %s: unexpected %T", address, result)
	}
	return cfg.Manager, nil
}

// executeMsg builds the strategy message for entry.
func executeMsg(entry string, body SubmitRequest) (ir.ExecuteMsg, error) {
	switch entry {
	case "execute":
		return ir.ExecuteExecute(), nil
	case "cancel":
		return ir.ExecuteCancel(), nil
	case "clear":
		return ir.ExecuteClear(), nil
	case "withdraw":
		if body.Coins == "" {
			return ir.ExecuteMsg{}, errors.New("coins is required for withdraw")
		}
		coins, err := ir.ParseCoins(body.Coins)
		if err != nil {
			return ir.ExecuteMsg{}, fmt.Errorf("coins: %w", err)
		}
		return ir.ExecuteMsg{Withdraw: &ir.WithdrawMsg{Amounts: coins}}, nil
	case "update":
		nodes, err := updateNodes(body)
		if err != nil {
			return ir.ExecuteMsg{}, err
		}
		return ir.ExecuteMsg{Update: &ir.UpdateMsg{Nodes: nodes}}, nil
	}
	return ir.ExecuteMsg{}, fmt.Errorf("unknown entry %q", entry)
}

func updateNodes(body SubmitRequest) ([]ir.Node, error) {
	if body.Definition != "" {
		def, err := compiler.CompileStrategySource("request.cue", []byte(body.Definition))
		if err != nil {
			return nil, err
		}
		return def.Nodes, nil
	}
	return ir.DecodeNodes(body.Nodes)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if code == CodeFailed {
		status, code = http.StatusInternalServerError, CodeInternal
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	writeError(w, status, code, err.Error())
}
