package service

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"giveaway/internal/auth"
	"giveaway/internal/dto"
	"giveaway/internal/model"
	"giveaway/internal/rabbit"
	"giveaway/internal/repo"
	"giveaway/internal/storage"
	"giveaway/pkg/validator"
)

// homePastLimit caps the past-giveaway summary on the public home page.
const homePastLimit = 5

type Service interface {
	Index(ctx *ginext.Context)
	GetGiveaway(ctx *ginext.Context)
	SubmitEntry(ctx *ginext.Context)
	Confirmation(ctx *ginext.Context)
	LoginPage(ctx *ginext.Context)
	Login(ctx *ginext.Context)
	Logout(ctx *ginext.Context)
	Dashboard(ctx *ginext.Context)
	NewGiveawayForm(ctx *ginext.Context)
	AddGiveaway(ctx *ginext.Context)
	EditGiveawayForm(ctx *ginext.Context)
	EditGiveaway(ctx *ginext.Context)
	DeleteGiveaway(ctx *ginext.Context)
	ListEntries(ctx *ginext.Context)
	DeleteEntry(ctx *ginext.Context)
}

type service struct {
	repo    repo.Repository
	log     *zerolog.Logger
	rbt     *rabbit.Client
	images  *storage.ImageStore
	authCfg auth.Config
}

func NewService(repo repo.Repository, log *zerolog.Logger, rbt *rabbit.Client, images *storage.ImageStore, authCfg auth.Config) Service {
	return &service{
		repo:    repo,
		log:     log,
		rbt:     rbt,
		images:  images,
		authCfg: authCfg,
	}
}

func (s *service) Index(ctx *ginext.Context) {
	now := time.Now()

	active, err := s.repo.ListActiveGiveaways(ctx.Request.Context(), now)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list active giveaways")
		dto.InternalServerError(ctx)
		return
	}

	past, err := s.repo.ListPastGiveaways(ctx.Request.Context(), now, homePastLimit)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list past giveaways")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, dto.HomeResponse{
		Active: s.toGiveawayResponses(ctx, active, now),
		Past:   s.toGiveawayResponses(ctx, past, now),
	})
}

func (s *service) GetGiveaway(ctx *ginext.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid giveaway ID")
		return
	}

	giveaway, err := s.repo.GetGiveawayByID(ctx.Request.Context(), id)
	if err != nil {
		dto.GiveawayNotFoundError(ctx)
		return
	}

	count, err := s.repo.CountEntries(ctx.Request.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to count entries")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, toGiveawayResponse(giveaway, count, time.Now()))
}

func (s *service) SubmitEntry(ctx *ginext.Context) {
	giveawayID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid giveaway ID")
		return
	}

	var req dto.SubmitEntryRequest
	if err := ctx.ShouldBind(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid form data")
		return
	}

	if fields := validator.Validate(ctx, req); len(fields) > 0 {
		dto.ValidationFailedError(ctx, fields)
		return
	}

	entry := &model.Entry{
		GiveawayID: int(giveawayID),
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
	}

	id, err := s.repo.CreateEntryTx(ctx.Request.Context(), entry, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrGiveawayNotFound):
			dto.GiveawayNotFoundError(ctx)
		case errors.Is(err, repo.ErrGiveawayClosed):
			dto.GiveawayClosedError(ctx)
		case errors.Is(err, repo.ErrDuplicateEntry):
			dto.EntryDuplicateError(ctx)
		default:
			s.log.Error().Err(err).Msg("failed to create entry")
			dto.InternalServerError(ctx)
		}
		return
	}

	s.log.Info().Int64("entry_id", id).Int64("giveaway_id", giveawayID).Msg("entry created")

	s.notifyEntryReceived(ctx, id, giveawayID, entry)

	dto.SuccessCreatedResponse(ctx, dto.EntryResponse{
		ID:         int(id),
		GiveawayID: int(giveawayID),
		Name:       entry.Name,
		Email:      entry.Email,
		Phone:      entry.Phone,
		CreatedAt:  time.Now(),
	})
}

// notifyEntryReceived publishes the confirmation-email message. The
// entry is already stored, so failures here are logged and swallowed.
func (s *service) notifyEntryReceived(ctx *ginext.Context, entryID, giveawayID int64, entry *model.Entry) {
	if s.rbt == nil {
		return
	}

	giveaway, err := s.repo.GetGiveawayByID(ctx.Request.Context(), giveawayID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load giveaway for notification")
		return
	}

	msg := dto.EntryReceivedMessage{
		EntryID:       entryID,
		GiveawayID:    giveawayID,
		GiveawayTitle: giveaway.Title,
		Name:          entry.Name,
		Email:         entry.Email,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal entry notification")
		return
	}
	if err := s.rbt.Publish(payload); err != nil {
		s.log.Error().Err(err).Msg("failed to publish entry notification")
	}
}

func (s *service) Confirmation(ctx *ginext.Context) {
	entryID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid entry ID")
		return
	}

	entry, err := s.repo.GetEntryByID(ctx.Request.Context(), entryID)
	if err != nil {
		dto.EntryNotFoundError(ctx)
		return
	}

	giveaway, err := s.repo.GetGiveawayByID(ctx.Request.Context(), int64(entry.GiveawayID))
	if err != nil {
		dto.GiveawayNotFoundError(ctx)
		return
	}

	dto.SuccessResponse(ctx, dto.ConfirmationResponse{
		Entry:    toEntryResponse(entry),
		Giveaway: toGiveawayResponse(giveaway, 0, time.Now()),
	})
}

func (s *service) LoginPage(ctx *ginext.Context) {
	if token, err := ctx.Cookie(auth.SessionCookie); err == nil && token != "" {
		if _, err := auth.ParseToken([]byte(s.authCfg.Secret), token); err == nil {
			ctx.Redirect(302, "/admin/dashboard")
			return
		}
	}
	dto.SuccessResponse(ctx, dto.AdminLoginResponse{Next: ctx.Query("next")})
}

func (s *service) Login(ctx *ginext.Context) {
	var req dto.AdminLoginRequest
	if err := ctx.ShouldBind(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid form data")
		return
	}

	if fields := validator.Validate(ctx, req); len(fields) > 0 {
		dto.ValidationFailedError(ctx, fields)
		return
	}

	admin, err := s.repo.GetAdminByUsername(ctx.Request.Context(), req.Username)
	if err != nil {
		if !errors.Is(err, repo.ErrAdminNotFound) {
			s.log.Error().Err(err).Msg("failed to look up admin")
			dto.InternalServerError(ctx)
			return
		}
		dto.InvalidCredentialsError(ctx)
		return
	}

	if !auth.CheckPassword(admin.PasswordHash, req.Password) {
		dto.InvalidCredentialsError(ctx)
		return
	}

	token, err := auth.IssueToken([]byte(s.authCfg.Secret), admin.ID, s.authCfg.TokenTTL)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to issue session token")
		dto.InternalServerError(ctx)
		return
	}
	auth.SetSessionCookie(ctx, token, s.authCfg.TokenTTL)

	s.log.Info().Int("admin_id", admin.ID).Msg("admin logged in")

	next := ctx.Query("next")
	if next == "" {
		next = ctx.PostForm("next")
	}
	dto.SuccessResponse(ctx, dto.AdminLoginResponse{
		AdminID:  admin.ID,
		Username: admin.Username,
		Next:     next,
	})
}

func (s *service) Logout(ctx *ginext.Context) {
	auth.ClearSessionCookie(ctx)
	ctx.Redirect(302, "/")
}

func (s *service) Dashboard(ctx *ginext.Context) {
	now := time.Now()

	active, err := s.repo.ListActiveGiveaways(ctx.Request.Context(), now)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list active giveaways")
		dto.InternalServerError(ctx)
		return
	}

	past, err := s.repo.ListPastGiveaways(ctx.Request.Context(), now, 0)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list past giveaways")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, dto.HomeResponse{
		Active: s.toGiveawayResponses(ctx, active, now),
		Past:   s.toGiveawayResponses(ctx, past, now),
	})
}

func (s *service) NewGiveawayForm(ctx *ginext.Context) {
	dto.SuccessResponse(ctx, nil)
}

func (s *service) AddGiveaway(ctx *ginext.Context) {
	form, fields, ok := s.parseGiveawayForm(ctx, false)
	if !ok {
		return
	}
	if len(fields) > 0 {
		dto.ValidationFailedError(ctx, fields)
		return
	}

	// The image is written first; a failed record insert must not
	// leave a stored file behind, and a stored record must never
	// reference a file that was not written.
	imageName, ok := s.saveImageIfPresent(ctx)
	if !ok {
		return
	}

	giveaway := &model.Giveaway{
		Title:       form.title,
		Description: form.description,
		Prize:       form.prize,
		Image:       imageName,
		StartDate:   form.startDate,
		EndDate:     form.endDate,
	}

	id, err := s.repo.CreateGiveaway(ctx.Request.Context(), giveaway)
	if err != nil {
		if imageName != "" {
			if rerr := s.images.Remove(imageName); rerr != nil {
				s.log.Error().Err(rerr).Msg("failed to roll back stored image")
			}
		}
		s.log.Error().Err(err).Msg("failed to create giveaway")
		dto.InternalServerError(ctx)
		return
	}
	giveaway.ID = int(id)

	s.log.Info().Int64("giveaway_id", id).Msg("giveaway created")
	dto.SuccessCreatedResponse(ctx, toGiveawayResponse(giveaway, 0, time.Now()))
}

func (s *service) EditGiveawayForm(ctx *ginext.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid giveaway ID")
		return
	}

	giveaway, err := s.repo.GetGiveawayByID(ctx.Request.Context(), id)
	if err != nil {
		dto.GiveawayNotFoundError(ctx)
		return
	}

	dto.SuccessResponse(ctx, toGiveawayResponse(giveaway, 0, time.Now()))
}

func (s *service) EditGiveaway(ctx *ginext.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid giveaway ID")
		return
	}

	existing, err := s.repo.GetGiveawayByID(ctx.Request.Context(), id)
	if err != nil {
		dto.GiveawayNotFoundError(ctx)
		return
	}

	// Edits may keep an end date in the past so ended giveaways stay
	// correctable.
	form, fields, ok := s.parseGiveawayForm(ctx, true)
	if !ok {
		return
	}
	if len(fields) > 0 {
		dto.ValidationFailedError(ctx, fields)
		return
	}

	newImage, ok := s.saveImageIfPresent(ctx)
	if !ok {
		return
	}

	updated := &model.Giveaway{
		ID:          existing.ID,
		Title:       form.title,
		Description: form.description,
		Prize:       form.prize,
		Image:       existing.Image,
		StartDate:   form.startDate,
		EndDate:     form.endDate,
	}
	if newImage != "" {
		updated.Image = newImage
	}

	if err := s.repo.UpdateGiveaway(ctx.Request.Context(), updated); err != nil {
		if newImage != "" {
			if rerr := s.images.Remove(newImage); rerr != nil {
				s.log.Error().Err(rerr).Msg("failed to roll back stored image")
			}
		}
		if errors.Is(err, repo.ErrGiveawayNotFound) {
			dto.GiveawayNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Msg("failed to update giveaway")
		dto.InternalServerError(ctx)
		return
	}

	// The replaced image goes away only after the record points at the
	// new one.
	if newImage != "" && existing.Image != "" {
		if err := s.images.Remove(existing.Image); err != nil {
			s.log.Error().Err(err).Msg("failed to remove replaced image")
		}
	}

	s.log.Info().Int64("giveaway_id", id).Msg("giveaway updated")
	dto.SuccessResponse(ctx, toGiveawayResponse(updated, 0, time.Now()))
}

func (s *service) DeleteGiveaway(ctx *ginext.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid giveaway ID")
		return
	}

	giveaway, err := s.repo.GetGiveawayByID(ctx.Request.Context(), id)
	if err != nil {
		dto.GiveawayNotFoundError(ctx)
		return
	}

	if err := s.repo.DeleteGiveawayTx(ctx.Request.Context(), id); err != nil {
		if errors.Is(err, repo.ErrGiveawayNotFound) {
			dto.GiveawayNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Msg("failed to delete giveaway")
		dto.InternalServerError(ctx)
		return
	}

	if giveaway.Image != "" {
		if err := s.images.Remove(giveaway.Image); err != nil {
			s.log.Error().Err(err).Msg("failed to remove giveaway image")
		}
	}

	s.log.Info().Int64("giveaway_id", id).Msg("giveaway deleted")
	dto.SuccessResponse(ctx, map[string]any{"deleted": id})
}

func (s *service) ListEntries(ctx *ginext.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid giveaway ID")
		return
	}

	giveaway, err := s.repo.GetGiveawayByID(ctx.Request.Context(), id)
	if err != nil {
		dto.GiveawayNotFoundError(ctx)
		return
	}

	entries, err := s.repo.ListEntriesByGiveaway(ctx.Request.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list entries")
		dto.InternalServerError(ctx)
		return
	}

	resp := dto.GiveawayDetailResponse{
		Giveaway: toGiveawayResponse(giveaway, len(entries), time.Now()),
	}
	for i := range entries {
		resp.Entries = append(resp.Entries, toEntryResponse(&entries[i]))
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) DeleteEntry(ctx *ginext.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid entry ID")
		return
	}

	if err := s.repo.DeleteEntry(ctx.Request.Context(), id); err != nil {
		if errors.Is(err, repo.ErrEntryNotFound) {
			dto.EntryNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Msg("failed to delete entry")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Int64("entry_id", id).Msg("entry deleted")
	dto.SuccessResponse(ctx, map[string]any{"deleted": id})
}

type giveawayForm struct {
	title       string
	description string
	prize       string
	startDate   time.Time
	endDate     time.Time
}

// parseGiveawayForm binds and validates the multipart create/edit
// form. The bool result is false when a response has already been
// written (oversize body or unreadable form).
func (s *service) parseGiveawayForm(ctx *ginext.Context, allowPastEnd bool) (*giveawayForm, []validator.FieldError, bool) {
	if ctx.Request.ContentLength > storage.MaxUploadBytes {
		dto.FileTooLargeError(ctx)
		return nil, nil, false
	}

	var req dto.GiveawayFormRequest
	if err := ctx.ShouldBind(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid form data")
		return nil, nil, false
	}

	fields := validator.Validate(ctx, req)

	form := &giveawayForm{
		title:       req.Title,
		description: req.Description,
		prize:       req.Prize,
	}

	var datesOK = true
	if req.StartDate != "" {
		start, ferr := validator.ParseDateTime(dto.DateTimeLayout, req.StartDate, "start_date")
		if ferr != nil {
			fields = append(fields, *ferr)
			datesOK = false
		} else {
			form.startDate = start
		}
	} else {
		datesOK = false
	}
	if req.EndDate != "" {
		end, ferr := validator.ParseDateTime(dto.DateTimeLayout, req.EndDate, "end_date")
		if ferr != nil {
			fields = append(fields, *ferr)
			datesOK = false
		} else {
			form.endDate = end
		}
	} else {
		datesOK = false
	}

	if datesOK {
		fields = append(fields, validator.CheckDateRange(form.startDate, form.endDate, time.Now(), allowPastEnd)...)
	}

	if fh, err := ctx.FormFile("image"); err == nil && fh != nil {
		if fh.Size > storage.MaxUploadBytes {
			dto.FileTooLargeError(ctx)
			return nil, nil, false
		}
		if !storage.Allowed(fh.Filename) {
			fields = append(fields, validator.FieldError{
				Field:   "image",
				Message: "Only png, jpg, jpeg and gif files are allowed",
			})
		}
	}

	return form, fields, true
}

// saveImageIfPresent stores the uploaded image, if any. The bool
// result is false when an error response has been written.
func (s *service) saveImageIfPresent(ctx *ginext.Context) (string, bool) {
	fh, err := ctx.FormFile("image")
	if err != nil || fh == nil {
		return "", true
	}

	name, err := s.images.Save(fh)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrFileTooLarge):
			dto.FileTooLargeError(ctx)
		case errors.Is(err, storage.ErrExtNotAllowed):
			dto.ValidationFailedError(ctx, []validator.FieldError{{
				Field:   "image",
				Message: "Only png, jpg, jpeg and gif files are allowed",
			}})
		default:
			s.log.Error().Err(err).Msg("failed to store image")
			dto.InternalServerError(ctx)
		}
		return "", false
	}
	return name, true
}

func (s *service) toGiveawayResponses(ctx *ginext.Context, giveaways []model.Giveaway, now time.Time) []dto.GiveawayResponse {
	resp := make([]dto.GiveawayResponse, 0, len(giveaways))
	for i := range giveaways {
		g := &giveaways[i]

		count, err := s.repo.CountEntries(ctx.Request.Context(), int64(g.ID))
		if err != nil {
			s.log.Error().Err(err).Int("giveaway_id", g.ID).Msg("failed to count entries")
		}
		resp = append(resp, toGiveawayResponse(g, count, now))
	}
	return resp
}

func toGiveawayResponse(g *model.Giveaway, entryCount int, now time.Time) dto.GiveawayResponse {
	return dto.GiveawayResponse{
		ID:          g.ID,
		Title:       g.Title,
		Description: g.Description,
		Prize:       g.Prize,
		ImageURL:    g.ImageURL(),
		StartDate:   g.StartDate,
		EndDate:     g.EndDate,
		IsActive:    g.IsActive(now),
		EntryCount:  entryCount,
		CreatedAt:   g.CreatedAt,
	}
}

func toEntryResponse(e *model.Entry) dto.EntryResponse {
	return dto.EntryResponse{
		ID:         e.ID,
		GiveawayID: e.GiveawayID,
		Name:       e.Name,
		Email:      e.Email,
		Phone:      e.Phone,
		CreatedAt:  e.CreatedAt,
	}
}
