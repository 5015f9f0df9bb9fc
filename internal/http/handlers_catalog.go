package http

import (
	"net/http"

	"budgetbuddy/internal/core"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/ports"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := parseCategoryTypeQuery(r)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	s.withUser(w, r, func(u ports.User) {
		list, err := s.registry.get(u).store.ListCategories(ctx, t)
		if err != nil {
			// Defaults are still usable when custom categories cannot be read.
			log.LogError(ctx, "Failed to list custom categories", err, log.ComponentHTTP, log.OpList, nil)
		}
		NewJSONResponse().JSON(toCategoryDTOs(list)).Write(w)
	})
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	t, err := parseCategoryType(req.Type)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	s.withUser(w, r, func(u ports.User) {
		c, err := s.registry.get(u).store.AddCategory(ctx, core.Category{Name: sanitizeInput(req.Name), Type: t})
		if err != nil {
			s.logFailure(ctx, "Failed to add category", err, log.OpCreate)
			ErrorFor(err).Write(w)
			return
		}
		NewJSONResponse().Status(http.StatusCreated).JSON(toCategoryDTOs([]core.Category{c})[0]).Write(w)
	})
}

func (s *Server) handleRemoveCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := sanitizeInput(r.PathValue("id"))
	s.withUser(w, r, func(u ports.User) {
		if err := s.registry.get(u).store.RemoveCategory(ctx, id); err != nil {
			s.logFailure(ctx, "Failed to remove category", err, log.OpDelete)
			ErrorFor(err).Write(w)
			return
		}
		NewJSONResponse().Status(http.StatusNoContent).Write(w)
	})
}

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.withUser(w, r, func(u ports.User) {
		list, err := s.registry.get(u).store.ListInvoices(ctx)
		if err != nil {
			s.writeLoadError(w, r, "Failed to list invoices", err)
			return
		}
		out := make([]invoiceDTO, 0, len(list))
		for _, inv := range list {
			out = append(out, toInvoiceDTO(inv))
		}
		NewJSONResponse().JSON(out).Write(w)
	})
}

func (s *Server) handleAddInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req invoiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	inv, err := req.parse()
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	s.withUser(w, r, func(u ports.User) {
		saved, err := s.registry.get(u).store.SaveInvoice(ctx, inv)
		if err != nil {
			s.logFailure(ctx, "Failed to save invoice", err, log.OpCreate)
			ErrorFor(err).Write(w)
			return
		}
		NewJSONResponse().Status(http.StatusCreated).JSON(toInvoiceDTO(saved)).Write(w)
	})
}

func (s *Server) handleInvoiceProcessed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := sanitizeInput(r.PathValue("id"))
	s.withUser(w, r, func(u ports.User) {
		inv, err := s.registry.get(u).store.MarkInvoiceProcessed(ctx, id)
		if err != nil {
			s.logFailure(ctx, "Failed to mark invoice processed", err, log.OpUpdate)
			ErrorFor(err).Write(w)
			return
		}
		NewJSONResponse().JSON(toInvoiceDTO(inv)).Write(w)
	})
}
