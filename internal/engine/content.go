package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/bus"
	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/notify"
	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/store"
)

// Fidelity ranks how rich/effortful a content or interaction type is.
type Fidelity string

const (
	FidelityLow    Fidelity = "low"
	FidelityMedium Fidelity = "medium"
	FidelityHigh   Fidelity = "high"
)

var contentFidelity = map[string]Fidelity{
	"text":           FidelityLow,
	"photo":          FidelityMedium,
	"life_update":    FidelityMedium,
	"voice_note":     FidelityHigh,
	"video":          FidelityHigh,
	"call_invite":    FidelityHigh,
	"meetup_invite":  FidelityHigh,
	"proximity_ping": FidelityHigh,
}

var interactionFidelity = map[string]Fidelity{
	"like":          FidelityLow,
	"comment":       FidelityMedium,
	"share":         FidelityMedium,
	"voice_reply":   FidelityHigh,
	"call_accepted": FidelityHigh,
	"meetup_rsvp":   FidelityHigh,
}

// ContentFidelity classifies a content type.
func ContentFidelity(contentType string) (Fidelity, bool) {
	f, ok := contentFidelity[contentType]
	return f, ok
}

// InteractionFidelity classifies an interaction type.
func InteractionFidelity(interactionType string) (Fidelity, bool) {
	f, ok := interactionFidelity[interactionType]
	return f, ok
}

// ShowLikeCount reports whether aggregate like counts are shown at a
// tier. Hidden for core and inner to bias the closest relationships
// toward higher-fidelity responses.
func ShowLikeCount(tier Tier) bool {
	return tier != TierCore && tier != TierInner
}

// CreatePost publishes content to the author's chosen tiers.
func (e *Engine) CreatePost(ctx context.Context, authorID, contentType, content string, visibility []Tier) (*store.Post, error) {
	if authorID == "" {
		return nil, fmt.Errorf("%w: author id required", ErrValidation)
	}
	if _, ok := ContentFidelity(contentType); !ok {
		return nil, fmt.Errorf("%w: unknown content type %q", ErrValidation, contentType)
	}
	if len(visibility) == 0 {
		return nil, fmt.Errorf("%w: visibility tiers required", ErrValidation)
	}
	tiers := make([]string, len(visibility))
	for i, t := range visibility {
		if _, err := ParseTier(string(t)); err != nil {
			return nil, err
		}
		tiers[i] = string(t)
	}

	post := store.Post{
		ID:          newID(),
		AuthorID:    authorID,
		ContentType: contentType,
		Content:     content,
		Visibility:  tiers,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.DB.CreatePost(ctx, post); err != nil {
		return nil, err
	}

	e.Bus.Publish(bus.Event{
		Topic:   bus.TopicPostCreated,
		Subject: post.ID,
		Actors:  []string{authorID},
	})
	e.notifyCircle(ctx, post)
	return &post, nil
}

// notifyCircle schedules delivery of a new post to every friend who may
// see it, at the priority of the tier the author placed them in.
func (e *Engine) notifyCircle(ctx context.Context, post store.Post) {
	edges, err := e.DB.ListConfirmedEdgesForPerson(ctx, post.AuthorID)
	if err != nil {
		log.Printf("content: notify circle for %s: %v", post.ID, err)
		return
	}
	for _, edge := range edges {
		friendID := FriendIDFor(post.AuthorID, edge)
		visible, err := e.CanViewerSee(ctx, friendID, post)
		if err != nil || !visible {
			continue
		}
		tier := MyTierFor(post.AuthorID, edge)
		priority, window := e.Schedule(tier)
		e.dispatch(notify.Notification{
			RecipientID: friendID,
			Kind:        "post",
			SubjectID:   post.ID,
			Priority:    priority,
			Window:      window,
		})
	}
}

// CanViewerSee reports whether a viewer may see a post: the tier the
// author placed the viewer in must be in the post's visibility set, and
// the author's tier policy must not block the content category for that
// tier. Authors always see their own posts.
func (e *Engine) CanViewerSee(ctx context.Context, viewerID string, post store.Post) (bool, error) {
	if viewerID == post.AuthorID {
		return true, nil
	}

	edge, err := e.DB.EdgeForPair(ctx, viewerID, post.AuthorID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if edge.Status != store.StatusConfirmed {
		return false, nil
	}

	viewerTier := MyTierFor(post.AuthorID, *edge)
	shared := false
	for _, t := range post.Visibility {
		if Tier(t) == viewerTier {
			shared = true
			break
		}
	}
	if !shared {
		return false, nil
	}

	blocked, err := e.DB.BlockedTypes(ctx, post.AuthorID, string(viewerTier))
	if err != nil {
		return false, err
	}
	for _, b := range blocked {
		if b == post.ContentType {
			return false, nil
		}
	}
	return true, nil
}

// TierFeed returns posts authored by friends the viewer classifies at
// tier, filtered by visibility, newest first. Pure query: empty result
// on no data, never an error for an empty graph.
func (e *Engine) TierFeed(ctx context.Context, viewerID string, tier Tier) ([]store.Post, error) {
	friends, err := e.ConfirmedFriendsInTier(ctx, viewerID, tier)
	if err != nil {
		return nil, err
	}
	if len(friends) == 0 {
		return nil, nil
	}

	authorIDs := make([]string, len(friends))
	for i, f := range friends {
		authorIDs[i] = f.PersonID
	}
	posts, err := e.DB.ListPostsByAuthors(ctx, authorIDs)
	if err != nil {
		return nil, err
	}

	var feed []store.Post
	for _, p := range posts {
		visible, err := e.CanViewerSee(ctx, viewerID, p)
		if err != nil {
			return nil, err
		}
		if visible {
			feed = append(feed, p)
		}
	}
	return feed, nil
}

// AddInteraction records a response to a post the actor can see.
// High-fidelity interactions count as deep contact between the actor
// and the author.
func (e *Engine) AddInteraction(ctx context.Context, postID, userID, interactionType, content string) (*store.Interaction, error) {
	fidelity, ok := InteractionFidelity(interactionType)
	if !ok {
		return nil, fmt.Errorf("%w: unknown interaction type %q", ErrValidation, interactionType)
	}

	post, err := e.DB.GetPost(ctx, postID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	visible, err := e.CanViewerSee(ctx, userID, *post)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	interaction := store.Interaction{
		ID:        newID(),
		PostID:    postID,
		UserID:    userID,
		Type:      interactionType,
		Content:   content,
		CreatedAt: now,
	}
	if err := e.DB.AddInteraction(ctx, interaction); err != nil {
		return nil, err
	}

	if fidelity == FidelityHigh && userID != post.AuthorID {
		if err := e.DB.TouchLastDeepContact(ctx, userID, post.AuthorID, now); err != nil {
			log.Printf("content: touch deep contact %s/%s: %v", userID, post.AuthorID, err)
		}
	}

	e.Bus.Publish(bus.Event{
		Topic:   bus.TopicInteractionCreated,
		Subject: interaction.ID,
		Actors:  []string{userID, post.AuthorID},
	})
	if userID != post.AuthorID {
		if edge, err := e.DB.EdgeForPair(ctx, userID, post.AuthorID); err == nil {
			priority, window := e.Schedule(MyTierFor(post.AuthorID, *edge))
			e.dispatch(notify.Notification{
				RecipientID: post.AuthorID,
				Kind:        "interaction",
				SubjectID:   interaction.ID,
				Priority:    priority,
				Window:      window,
			})
		}
	}
	return &interaction, nil
}

// UpdatePost edits post content. Author-restricted.
func (e *Engine) UpdatePost(ctx context.Context, postID, actorID, content string) error {
	post, err := e.DB.GetPost(ctx, postID)
	if err != nil {
		return mapStoreErr(err)
	}
	if post.AuthorID != actorID {
		return ErrNotAuthenticated
	}
	return mapStoreErr(e.DB.UpdatePost(ctx, postID, actorID, content))
}

// DeletePost removes a post and its interactions. Author-restricted.
func (e *Engine) DeletePost(ctx context.Context, postID, actorID string) error {
	post, err := e.DB.GetPost(ctx, postID)
	if err != nil {
		return mapStoreErr(err)
	}
	if post.AuthorID != actorID {
		return ErrNotAuthenticated
	}
	return mapStoreErr(e.DB.DeletePost(ctx, postID, actorID))
}
