package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hylla/draftwork/internal/domain"
)

// Service is the authoritative work-item store. Mutations on one item are
// linearized by a per-item lock so the transition policy always evaluates
// against a consistent prior state; operations on different items proceed in
// parallel. Events publish only after persistence succeeds.
type Service struct {
	repo     Repository
	events   Publisher
	catalog  Catalog
	notifier Notifier
	clock    Clock

	locks sync.Map // item id -> *sync.Mutex
}

// NewService constructs a service. Publisher, catalog, and notifier may be nil
// when the corresponding side effect is not wired (tests, import tooling).
func NewService(repo Repository, events Publisher, catalog Catalog, notifier Notifier, clock Clock) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:     repo,
		events:   events,
		catalog:  catalog,
		notifier: notifier,
		clock:    clock,
	}
}

// lockItem acquires the per-item mutation lock and returns its release func.
func (s *Service) lockItem(itemID int64) func() {
	actual, _ := s.locks.LoadOrStore(itemID, &sync.Mutex{})
	mu := actual.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// publish forwards an event when a publisher is wired.
func (s *Service) publish(event domain.Event) {
	if s.events != nil {
		s.events.Publish(event)
	}
}

// CreateItemInput holds input values for item creation.
type CreateItemInput struct {
	Name         string
	Description  string
	BriefURL     string
	AssetURL     string
	Price        float64
	ReviewerName string
	FlowPayload  string
	Actor        domain.UserRef
}

// CreateItem creates a new unassigned item in status "new". Admin only.
func (s *Service) CreateItem(ctx context.Context, in CreateItemInput) (domain.WorkItem, error) {
	if in.Actor.Role != domain.RoleAdmin {
		return domain.WorkItem{}, fmt.Errorf("%w: only admins create items", domain.ErrForbidden)
	}
	now := s.clock()
	item, err := domain.NewWorkItem(domain.WorkItemInput{
		Name:         in.Name,
		Description:  in.Description,
		BriefURL:     in.BriefURL,
		AssetURL:     in.AssetURL,
		Price:        in.Price,
		ReviewerName: in.ReviewerName,
		FlowPayload:  in.FlowPayload,
		CreatedBy:    in.Actor,
	}, now)
	if err != nil {
		return domain.WorkItem{}, err
	}
	item.AppendActivity(in.Actor, "item.created", "", now)
	return s.repo.CreateItem(ctx, item)
}

// GetItem returns one item by id.
func (s *Service) GetItem(ctx context.Context, itemID int64) (domain.WorkItem, error) {
	return s.repo.LoadItem(ctx, itemID)
}

// ListItems returns all items.
func (s *Service) ListItems(ctx context.Context) ([]domain.WorkItem, error) {
	return s.repo.ListItems(ctx)
}

// GetUser resolves one directory user by id.
func (s *Service) GetUser(ctx context.Context, userID string) (domain.UserRef, error) {
	return s.repo.GetUser(ctx, userID)
}

// Directory returns the mention directory in stable user-directory order.
func (s *Service) Directory(ctx context.Context) ([]domain.DirectoryEntry, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DirectoryEntry, 0, len(users))
	for _, user := range users {
		out = append(out, domain.DirectoryEntry{Handle: user.Handle, DisplayName: user.DisplayName})
	}
	return out, nil
}

// ItemPatch carries field-level changes for UpdateItem. Nil fields are left
// untouched.
type ItemPatch struct {
	Name         *string
	Description  *string
	BriefURL     *string
	AssetURL     *string
	Price        *float64
	ReviewerName *string
	FlowPayload  *string
	Status       *domain.Status
}

// UpdateItem applies a patch to one item. A status field routes through the
// transition policy; every other field requires the actor to be an admin or
// the current assignee. Exactly one activity entry and one item.updated event
// result from a successful call.
func (s *Service) UpdateItem(ctx context.Context, itemID int64, patch ItemPatch, actor domain.UserRef) (domain.WorkItem, error) {
	unlock := s.lockItem(itemID)
	defer unlock()

	item, err := s.repo.LoadItem(ctx, itemID)
	if err != nil {
		return domain.WorkItem{}, err
	}

	isAssignee := item.IsAssignedTo(actor.ID)
	if actor.Role != domain.RoleAdmin && !isAssignee {
		return domain.WorkItem{}, fmt.Errorf("%w: %s is not the assignee", domain.ErrForbidden, actor.Handle)
	}

	now := s.clock()
	var delta domain.ItemDelta
	changed := make([]string, 0, 4)

	if patch.Name != nil && strings.TrimSpace(*patch.Name) != item.Name {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return domain.WorkItem{}, domain.ErrInvalidName
		}
		item.Name = name
		delta.Name = &name
		changed = append(changed, "name")
	}
	if patch.Description != nil && *patch.Description != item.Description {
		item.Description = *patch.Description
		delta.Description = patch.Description
		changed = append(changed, "description")
	}
	if patch.BriefURL != nil && *patch.BriefURL != item.BriefURL {
		item.BriefURL = *patch.BriefURL
		delta.BriefURL = patch.BriefURL
		changed = append(changed, "brief_url")
	}
	if patch.AssetURL != nil && *patch.AssetURL != item.AssetURL {
		item.AssetURL = *patch.AssetURL
		delta.AssetURL = patch.AssetURL
		changed = append(changed, "asset_url")
	}
	if patch.Price != nil && *patch.Price != item.Price {
		item.Price = *patch.Price
		delta.Price = patch.Price
		changed = append(changed, "price")
	}
	if patch.ReviewerName != nil && *patch.ReviewerName != item.ReviewerName {
		item.ReviewerName = *patch.ReviewerName
		delta.ReviewerName = patch.ReviewerName
		changed = append(changed, "reviewer_name")
	}
	if patch.FlowPayload != nil && *patch.FlowPayload != item.FlowPayload {
		item.FlowPayload = *patch.FlowPayload
		delta.FlowPayload = patch.FlowPayload
		changed = append(changed, "flow_payload")
	}

	activityAction := "item.updated"
	activityDetail := strings.Join(changed, ", ")

	if patch.Status != nil {
		from := item.Status
		to := domain.NormalizeStatus(*patch.Status)
		if !domain.IsValidStatus(to) {
			return domain.WorkItem{}, domain.ErrInvalidStatus
		}
		if !domain.CanTransition(actor.Role, from, to, isAssignee) {
			return domain.WorkItem{}, fmt.Errorf("%w: %s -> %s not allowed for role %s", domain.ErrInvalidTransition, from, to, actor.Role)
		}
		if to == domain.StatusPublished && strings.TrimSpace(item.FlowPayload) == "" {
			return domain.WorkItem{}, fmt.Errorf("%w: publishing requires a flow payload", domain.ErrPreconditionFailed)
		}

		if to == domain.StatusPublished && item.PublicLibraryID == "" {
			if s.catalog == nil {
				return domain.WorkItem{}, fmt.Errorf("%w: no publication catalog configured", domain.ErrPreconditionFailed)
			}
			externalID, pubErr := s.catalog.Publish(ctx, item)
			if pubErr != nil {
				return domain.WorkItem{}, fmt.Errorf("publish to catalog: %w", pubErr)
			}
			item.PublicLibraryID = externalID
			delta.PublicLibraryID = &externalID
			changed = append(changed, "public_library_id")
		}
		if from == domain.StatusPublished && to == domain.StatusArchived && item.PublicLibraryID != "" && s.catalog != nil {
			if unpubErr := s.catalog.Unpublish(ctx, item.PublicLibraryID); unpubErr != nil {
				return domain.WorkItem{}, fmt.Errorf("unpublish from catalog: %w", unpubErr)
			}
		}

		if err := item.SetStatus(to, now); err != nil {
			return domain.WorkItem{}, err
		}
		status := to
		delta.Status = &status
		activityAction = "status.changed"
		activityDetail = fmt.Sprintf("%s -> %s", from, to)
	} else if len(changed) == 0 {
		// Nothing to do; avoid a ledger entry and an empty event.
		return item, nil
	}

	item.AppendActivity(actor, activityAction, activityDetail, now)
	item.UpdatedAt = now.UTC()

	saved, err := s.repo.SaveItem(ctx, item)
	if err != nil {
		return domain.WorkItem{}, err
	}

	updatedAt := saved.UpdatedAt
	delta.UpdatedAt = &updatedAt
	s.publish(domain.ItemUpdated{ID: saved.ID, Delta: delta})
	return saved, nil
}

// Assign assigns an item to a creator. Admin only; a fresh item advances from
// new to assigned.
func (s *Service) Assign(ctx context.Context, itemID int64, targetUserID string, actor domain.UserRef) (domain.WorkItem, error) {
	if actor.Role != domain.RoleAdmin {
		return domain.WorkItem{}, fmt.Errorf("%w: only admins assign items", domain.ErrForbidden)
	}
	target, err := s.repo.GetUser(ctx, targetUserID)
	if err != nil {
		return domain.WorkItem{}, fmt.Errorf("assign target: %w", err)
	}

	unlock := s.lockItem(itemID)
	defer unlock()

	item, err := s.repo.LoadItem(ctx, itemID)
	if err != nil {
		return domain.WorkItem{}, err
	}

	now := s.clock()
	if err := item.SetAssignee(target, now); err != nil {
		return domain.WorkItem{}, err
	}
	var delta domain.ItemDelta
	assignee := target
	delta.AssignedTo = &assignee
	if item.Status == domain.StatusNew {
		if err := item.SetStatus(domain.StatusAssigned, now); err != nil {
			return domain.WorkItem{}, err
		}
		status := domain.StatusAssigned
		delta.Status = &status
	}
	item.AppendActivity(actor, "item.assigned", "assigned to @"+target.Handle, now)

	saved, err := s.repo.SaveItem(ctx, item)
	if err != nil {
		return domain.WorkItem{}, err
	}
	updatedAt := saved.UpdatedAt
	delta.UpdatedAt = &updatedAt
	s.publish(domain.ItemUpdated{ID: saved.ID, Delta: delta})
	return saved, nil
}

// SelfAssign lets a creator claim an unassigned item. The check-and-set runs
// under the item lock, so of two concurrent claims exactly one succeeds and
// the other fails with ErrAlreadyAssigned.
func (s *Service) SelfAssign(ctx context.Context, itemID int64, actor domain.UserRef) (domain.WorkItem, error) {
	if actor.Role != domain.RoleCreator {
		return domain.WorkItem{}, fmt.Errorf("%w: only creators self-assign", domain.ErrForbidden)
	}

	unlock := s.lockItem(itemID)
	defer unlock()

	item, err := s.repo.LoadItem(ctx, itemID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	if item.AssignedTo != nil {
		return domain.WorkItem{}, fmt.Errorf("%w: claimed by @%s", domain.ErrAlreadyAssigned, item.AssignedTo.Handle)
	}

	now := s.clock()
	if err := item.SetAssignee(actor, now); err != nil {
		return domain.WorkItem{}, err
	}
	var delta domain.ItemDelta
	assignee := actor
	delta.AssignedTo = &assignee
	if item.Status == domain.StatusNew {
		if err := item.SetStatus(domain.StatusAssigned, now); err != nil {
			return domain.WorkItem{}, err
		}
		status := domain.StatusAssigned
		delta.Status = &status
	}
	item.AppendActivity(actor, "item.claimed", "", now)

	saved, err := s.repo.SaveItem(ctx, item)
	if err != nil {
		return domain.WorkItem{}, err
	}
	updatedAt := saved.UpdatedAt
	delta.UpdatedAt = &updatedAt
	s.publish(domain.ItemUpdated{ID: saved.ID, Delta: delta})
	return saved, nil
}

// DeleteItem removes an item permanently. Admin only. Subscribers learn about
// it through one item.deleted event.
func (s *Service) DeleteItem(ctx context.Context, itemID int64, actor domain.UserRef) error {
	if actor.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: only admins delete items", domain.ErrForbidden)
	}

	unlock := s.lockItem(itemID)
	defer unlock()

	if _, err := s.repo.LoadItem(ctx, itemID); err != nil {
		return err
	}
	if err := s.repo.DeleteItem(ctx, itemID); err != nil {
		return err
	}
	s.publish(domain.ItemDeleted{ID: itemID})
	return nil
}

// AddComment appends a comment with a server-assigned id and fans out mention
// notifications for known handles in the body.
func (s *Service) AddComment(ctx context.Context, itemID int64, body string, actor domain.UserRef) (domain.Comment, error) {
	if !domain.IsValidRole(actor.Role) {
		return domain.Comment{}, fmt.Errorf("%w: unknown actor role", domain.ErrForbidden)
	}

	unlock := s.lockItem(itemID)
	defer unlock()

	item, err := s.repo.LoadItem(ctx, itemID)
	if err != nil {
		return domain.Comment{}, err
	}

	now := s.clock()
	comment, err := domain.NewComment(item.NextCommentID(), actor, body, now)
	if err != nil {
		return domain.Comment{}, err
	}
	item.AppendComment(comment, now)
	item.AppendActivity(actor, "comment.added", "", now)

	saved, err := s.repo.SaveItem(ctx, item)
	if err != nil {
		return domain.Comment{}, err
	}
	s.publish(domain.CommentCreated{ItemID: saved.ID, Comment: comment})
	s.notifyMentions(ctx, saved.ID, comment.Body, actor)
	return comment, nil
}

// AddBlocker records a new open blocker on the item.
func (s *Service) AddBlocker(ctx context.Context, itemID int64, in domain.BlockerInput, actor domain.UserRef) (domain.Blocker, error) {
	if !domain.IsValidRole(actor.Role) {
		return domain.Blocker{}, fmt.Errorf("%w: unknown actor role", domain.ErrForbidden)
	}

	unlock := s.lockItem(itemID)
	defer unlock()

	item, err := s.repo.LoadItem(ctx, itemID)
	if err != nil {
		return domain.Blocker{}, err
	}

	now := s.clock()
	in.CreatedBy = actor
	blocker, err := domain.NewBlocker(item.NextBlockerID(), in, now)
	if err != nil {
		return domain.Blocker{}, err
	}
	item.Blockers = append(item.Blockers, blocker)
	item.AppendActivity(actor, "blocker.added", blocker.Title, now)
	item.UpdatedAt = now.UTC()

	saved, err := s.repo.SaveItem(ctx, item)
	if err != nil {
		return domain.Blocker{}, err
	}
	s.publishBlockerDelta(saved)
	return blocker, nil
}

// UpdateBlockerStatus moves a blocker through its lifecycle.
func (s *Service) UpdateBlockerStatus(ctx context.Context, itemID, blockerID int64, to domain.BlockerStatus, notes string, actor domain.UserRef) (domain.Blocker, error) {
	if !domain.IsValidRole(actor.Role) {
		return domain.Blocker{}, fmt.Errorf("%w: unknown actor role", domain.ErrForbidden)
	}

	unlock := s.lockItem(itemID)
	defer unlock()

	item, err := s.repo.LoadItem(ctx, itemID)
	if err != nil {
		return domain.Blocker{}, err
	}
	blocker := item.FindBlocker(blockerID)
	if blocker == nil {
		return domain.Blocker{}, fmt.Errorf("%w: blocker %d", domain.ErrNotFound, blockerID)
	}

	now := s.clock()
	from := blocker.Status
	if err := blocker.Transition(to, actor, notes, now); err != nil {
		return domain.Blocker{}, err
	}
	item.AppendActivity(actor, "blocker.status_changed", fmt.Sprintf("%s: %s -> %s", blocker.Title, from, blocker.Status), now)
	item.UpdatedAt = now.UTC()

	saved, err := s.repo.SaveItem(ctx, item)
	if err != nil {
		return domain.Blocker{}, err
	}
	s.publishBlockerDelta(saved)
	return *blocker, nil
}

// DeleteBlocker removes a blocker; blockers with discussion messages are kept.
func (s *Service) DeleteBlocker(ctx context.Context, itemID, blockerID int64, actor domain.UserRef) error {
	if !domain.IsValidRole(actor.Role) {
		return fmt.Errorf("%w: unknown actor role", domain.ErrForbidden)
	}

	unlock := s.lockItem(itemID)
	defer unlock()

	item, err := s.repo.LoadItem(ctx, itemID)
	if err != nil {
		return err
	}
	now := s.clock()
	if err := item.RemoveBlocker(blockerID, now); err != nil {
		return err
	}
	item.AppendActivity(actor, "blocker.removed", fmt.Sprintf("blocker %d", blockerID), now)

	saved, err := s.repo.SaveItem(ctx, item)
	if err != nil {
		return err
	}
	s.publishBlockerDelta(saved)
	return nil
}

// AddBlockerMessage appends one discussion message and fans out mentions.
func (s *Service) AddBlockerMessage(ctx context.Context, itemID, blockerID int64, body string, actor domain.UserRef) (domain.BlockerMessage, error) {
	if !domain.IsValidRole(actor.Role) {
		return domain.BlockerMessage{}, fmt.Errorf("%w: unknown actor role", domain.ErrForbidden)
	}

	unlock := s.lockItem(itemID)
	defer unlock()

	item, err := s.repo.LoadItem(ctx, itemID)
	if err != nil {
		return domain.BlockerMessage{}, err
	}
	blocker := item.FindBlocker(blockerID)
	if blocker == nil {
		return domain.BlockerMessage{}, fmt.Errorf("%w: blocker %d", domain.ErrNotFound, blockerID)
	}

	now := s.clock()
	message := domain.BlockerMessage{
		ID:        blocker.NextMessageID(),
		Author:    actor,
		Body:      strings.TrimSpace(body),
		CreatedAt: now.UTC(),
	}
	if err := blocker.AppendMessage(message, now); err != nil {
		return domain.BlockerMessage{}, err
	}
	item.AppendActivity(actor, "blocker.message_added", blocker.Title, now)
	item.UpdatedAt = now.UTC()

	saved, err := s.repo.SaveItem(ctx, item)
	if err != nil {
		return domain.BlockerMessage{}, err
	}
	s.publishBlockerDelta(saved)
	s.notifyMentions(ctx, saved.ID, message.Body, actor)
	return message, nil
}

// MarkBlockerSolution flags one discussion message as the accepted solution.
func (s *Service) MarkBlockerSolution(ctx context.Context, itemID, blockerID, messageID int64, actor domain.UserRef) error {
	if !domain.IsValidRole(actor.Role) {
		return fmt.Errorf("%w: unknown actor role", domain.ErrForbidden)
	}

	unlock := s.lockItem(itemID)
	defer unlock()

	item, err := s.repo.LoadItem(ctx, itemID)
	if err != nil {
		return err
	}
	blocker := item.FindBlocker(blockerID)
	if blocker == nil {
		return fmt.Errorf("%w: blocker %d", domain.ErrNotFound, blockerID)
	}

	now := s.clock()
	if err := blocker.MarkSolution(messageID, now); err != nil {
		return err
	}
	item.AppendActivity(actor, "blocker.solution_marked", blocker.Title, now)
	item.UpdatedAt = now.UTC()

	saved, err := s.repo.SaveItem(ctx, item)
	if err != nil {
		return err
	}
	s.publishBlockerDelta(saved)
	return nil
}

// publishBlockerDelta publishes the item's blocker list as one updated event.
func (s *Service) publishBlockerDelta(item domain.WorkItem) {
	updatedAt := item.UpdatedAt
	s.publish(domain.ItemUpdated{
		ID: item.ID,
		Delta: domain.ItemDelta{
			Blockers:  append([]domain.Blocker(nil), item.Blockers...),
			UpdatedAt: &updatedAt,
		},
	})
}

// notifyMentions resolves @handles against the directory and fires one
// notification per mentioned user. Failures to load the directory are logged
// and never fail the mutation that triggered them.
func (s *Service) notifyMentions(ctx context.Context, itemID int64, body string, actor domain.UserRef) {
	if s.notifier == nil {
		return
	}
	directory, err := s.Directory(ctx)
	if err != nil {
		log.Warn("mention fan-out skipped: directory unavailable", "item_id", itemID, "error", err)
		return
	}
	for _, handle := range domain.MentionedHandles(body, directory) {
		user, err := s.repo.GetUserByHandle(ctx, handle)
		if err != nil {
			log.Debug("mentioned handle not resolvable", "handle", handle, "error", err)
			continue
		}
		if user.ID == actor.ID {
			continue
		}
		s.notifier.Notify(ctx, user.ID, itemID, ReminderKindMention)
	}
}
