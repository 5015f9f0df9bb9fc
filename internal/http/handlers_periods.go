package http

import (
	"errors"
	"net/http"

	"budgetbuddy/internal/lifecycle"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/middleware/auth"
	"budgetbuddy/internal/ports"
)

// withUser runs fn for the authenticated user or answers 401.
func (s *Server) withUser(w http.ResponseWriter, r *http.Request, fn func(ports.User)) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		UnauthorizedError("not authenticated").Write(w)
		return
	}
	fn(u)
}

// handleCurrentPeriod reloads the current period, archiving it first when
// it has expired, and returns it. "No period" is a null period, not a 404.
func (s *Server) handleCurrentPeriod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.withUser(w, r, func(u ports.User) {
		var resp currentDTO
		err := s.registry.do(ctx, u, func(us *userSession) error {
			err := us.manager.LoadCurrentPeriod().Wait(ctx)
			if errors.Is(err, lifecycle.ErrArchiveFailed) {
				// The expired period stays in the active set and is retried
				// on the next load or by the rollover worker.
				log.FromContext(ctx).WarnContext(ctx, "Expired period not archived yet", log.FieldError, err)
				err = nil
			}
			if err != nil {
				return err
			}
			cur := us.manager.Current().Value()
			if cur != nil && cur.IsExpired(s.now()) {
				cur = nil
			}
			resp = toCurrentDTO(cur)
			return nil
		})
		if err != nil {
			s.writeLoadError(w, r, "Failed to load current period", err)
			return
		}
		NewJSONResponse().JSON(resp).Write(w)
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.withUser(w, r, func(u ports.User) {
		var resp historyDTO
		err := s.registry.do(ctx, u, func(us *userSession) error {
			if err := us.manager.LoadHistoricalPeriods().Wait(ctx); err != nil {
				return err
			}
			resp = historyDTO{Periods: toPeriodDTOs(us.manager.Historical().Value())}
			return nil
		})
		if err != nil {
			s.writeLoadError(w, r, "Failed to load historical periods", err)
			return
		}
		NewJSONResponse().JSON(resp).Write(w)
	})
}

// handleCreatePeriod starts the first period, or a new one once the
// previous period expired. An active period must be rolled over instead,
// so it answers 409 while one is current.
func (s *Server) handleCreatePeriod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req periodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	start, end, err := req.parse()
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	s.withUser(w, r, func(u ports.User) {
		var resp currentDTO
		err := s.registry.do(ctx, u, func(us *userSession) error {
			if err := us.manager.OpenPeriod(start, end).Wait(ctx); err != nil {
				return err
			}
			resp = toCurrentDTO(us.manager.Current().Value())
			return nil
		})
		if err != nil {
			s.logFailure(ctx, "Failed to create period", err, log.OpCreate)
			ErrorFor(err).Write(w)
			return
		}
		NewJSONResponse().Status(http.StatusCreated).JSON(resp).Write(w)
	})
}

// handleRollover archives the current period and starts a new one.
func (s *Server) handleRollover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req periodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	start, end, err := req.parse()
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	s.withUser(w, r, func(u ports.User) {
		var resp currentDTO
		err := s.registry.do(ctx, u, func(us *userSession) error {
			if err := us.manager.StartNewPeriod(start, end).Wait(ctx); err != nil {
				return err
			}
			resp = toCurrentDTO(us.manager.Current().Value())
			return nil
		})
		if err != nil {
			s.logFailure(ctx, "Rollover failed", err, log.OpRollover)
			ErrorFor(err).Write(w)
			return
		}
		NewJSONResponse().Status(http.StatusCreated).JSON(resp).Write(w)
	})
}

func (s *Server) handleAddIncome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req lineItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	in, err := req.income()
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	s.withUser(w, r, func(u ports.User) {
		err := s.registry.do(ctx, u, func(us *userSession) error {
			added, task := us.manager.AddIncome(in)
			in = added
			return task.Wait(ctx)
		})
		if err != nil {
			s.logFailure(ctx, "Failed to add income", err, log.OpCreate)
			ErrorFor(err).Write(w)
			return
		}
		NewJSONResponse().Status(http.StatusCreated).
			JSON(incomeDTO{ID: in.ID, Amount: toMoneyDTO(in.Amount), Category: in.Category}).Write(w)
	})
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req lineItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	e, err := req.expense()
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	s.withUser(w, r, func(u ports.User) {
		err := s.registry.do(ctx, u, func(us *userSession) error {
			added, task := us.manager.AddExpense(e)
			e = added
			return task.Wait(ctx)
		})
		if err != nil {
			s.logFailure(ctx, "Failed to add expense", err, log.OpCreate)
			ErrorFor(err).Write(w)
			return
		}
		NewJSONResponse().Status(http.StatusCreated).
			JSON(expenseDTO{ID: e.ID, Amount: toMoneyDTO(e.Amount), Category: e.Category, Fixed: e.Fixed}).Write(w)
	})
}

func (s *Server) handleRemoveLineItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := sanitizeInput(r.PathValue("id"))
	if id == "" {
		BadRequestError("missing item id").Write(w)
		return
	}

	s.withUser(w, r, func(u ports.User) {
		err := s.registry.do(ctx, u, func(us *userSession) error {
			return us.manager.RemoveLineItem(id).Wait(ctx)
		})
		if err != nil {
			s.logFailure(ctx, "Failed to remove line item", err, log.OpDelete)
			ErrorFor(err).Write(w)
			return
		}
		NewJSONResponse().Status(http.StatusNoContent).Write(w)
	})
}

// writeLoadError answers a failed read with 503 so clients retry.
func (s *Server) writeLoadError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, lifecycle.ErrClosed) {
		ErrorFor(err).Write(w)
		return
	}
	log.LogError(r.Context(), msg, err, log.ComponentHTTP, log.OpRead, nil)
	ServiceUnavailableError("period store unavailable").Write(w)
}
