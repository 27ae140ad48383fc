package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/engine"
	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/store"
)

func decode(r *http.Request, into any) bool {
	return json.NewDecoder(r.Body).Decode(into) == nil
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func (s *Server) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if !decode(r, &req) {
		badRequest(w, "invalid json")
		return
	}

	p, err := s.engine.RegisterPerson(r.Context(), req.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":           p.ID,
		"display_name": p.DisplayName,
	})
}

func (s *Server) handleAddContactMethod(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "personID")
	var req struct {
		ServiceType string `json:"service_type"`
		Identifier  string `json:"identifier"`
	}
	if !decode(r, &req) {
		badRequest(w, "invalid json")
		return
	}

	cm, err := s.engine.AddContactMethod(r.Context(), personID, req.ServiceType, req.Identifier)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":           cm.ID,
		"service_type": cm.ServiceType,
		"identifier":   cm.Identifier,
		"canonical":    cm.Canonical,
	})
}

func edgeJSON(e store.Edge) map[string]any {
	body := map[string]any{
		"id":              e.ID,
		"requester_id":    e.RequesterID,
		"target_id":       e.TargetID,
		"requester_tier":  e.RequesterTier,
		"status":          e.Status,
		"disclose_circle": e.DiscloseCircle,
		"created_at":      e.CreatedAt,
	}
	if e.TargetTier != "" {
		body["target_tier"] = e.TargetTier
	}
	if e.ConfirmedAt != nil {
		body["confirmed_at"] = e.ConfirmedAt
	}
	return body
}

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequesterID    string `json:"requester_id"`
		TargetID       string `json:"target_id"`
		Tier           string `json:"tier"`
		DiscloseCircle bool   `json:"disclose_circle"`
	}
	if !decode(r, &req) {
		badRequest(w, "invalid json")
		return
	}

	edge, err := s.engine.CreateConnectionRequest(r.Context(), engine.ConnectionRequest{
		RequesterID:    req.RequesterID,
		TargetID:       req.TargetID,
		Tier:           engine.Tier(req.Tier),
		DiscloseCircle: req.DiscloseCircle,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, edgeJSON(*edge))
}

func (s *Server) handleRespondConnection(w http.ResponseWriter, r *http.Request) {
	edgeID := chi.URLParam(r, "edgeID")
	var req struct {
		Accept bool   `json:"accept"`
		Tier   string `json:"tier"`
	}
	if !decode(r, &req) {
		badRequest(w, "invalid json")
		return
	}

	edge, err := s.engine.RespondToRequest(r.Context(), edgeID, req.Accept, engine.Tier(req.Tier))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, edgeJSON(*edge))
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteConnection(r.Context(), chi.URLParam(r, "edgeID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleFriendsInTier(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "personID")
	tier, err := engine.ParseTier(r.URL.Query().Get("tier"))
	if err != nil {
		writeError(w, err)
		return
	}

	friends, err := s.engine.ConfirmedFriendsInTier(r.Context(), personID, tier)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(friends))
	for _, f := range friends {
		out = append(out, map[string]any{
			"person_id":  f.PersonID,
			"my_tier":    f.MyTier,
			"their_tier": f.TheirTier,
			"edge_id":    f.Edge.ID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"friends": out})
}

func groupJSON(g store.ReservedGroup) map[string]any {
	return map[string]any{
		"id":    g.ID,
		"tier":  g.Tier,
		"count": g.Count,
		"note":  g.Note,
	}
}

func (s *Server) handleTierCapacity(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "personID")
	tier, err := engine.ParseTier(r.URL.Query().Get("tier"))
	if err != nil {
		writeError(w, err)
		return
	}

	tc, err := s.engine.Capacity(r.Context(), personID, tier)
	if err != nil {
		writeError(w, err)
		return
	}

	groups := make([]map[string]any, 0, len(tc.Groups))
	for _, g := range tc.Groups {
		groups = append(groups, groupJSON(g))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tier":            tc.Tier,
		"friend_count":    tc.FriendCount,
		"reserved":        tc.Reserved,
		"used":            tc.Used,
		"available":       tc.Available,
		"reserved_groups": groups,
	})
}

func (s *Server) handleAddReservedGroup(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "personID")
	var req struct {
		Tier  string `json:"tier"`
		Count int    `json:"count"`
		Note  string `json:"note"`
	}
	if !decode(r, &req) {
		badRequest(w, "invalid json")
		return
	}
	tier, err := engine.ParseTier(req.Tier)
	if err != nil {
		writeError(w, err)
		return
	}

	group, err := s.engine.AddReservedGroup(r.Context(), personID, tier, req.Count, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, groupJSON(*group))
}

func (s *Server) handleUpdateReservedGroup(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "personID")
	groupID := chi.URLParam(r, "groupID")
	var req struct {
		Count int    `json:"count"`
		Note  string `json:"note"`
	}
	if !decode(r, &req) {
		badRequest(w, "invalid json")
		return
	}

	group, err := s.engine.UpdateReservedGroup(r.Context(), personID, groupID, req.Count, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groupJSON(*group))
}

func (s *Server) handleRemoveReservedGroup(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "personID")
	groupID := chi.URLParam(r, "groupID")
	if err := s.engine.RemoveReservedGroup(r.Context(), personID, groupID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleRecordInvitation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InviterID   string `json:"inviter_id"`
		ServiceType string `json:"service_type"`
		Contact     string `json:"contact"`
		Tier        string `json:"tier"`
		FriendName  string `json:"friend_name"`
	}
	if !decode(r, &req) {
		badRequest(w, "invalid json")
		return
	}

	result, err := s.engine.RecordInvitation(r.Context(), req.InviterID, req.ServiceType, req.Contact, engine.Tier(req.Tier), req.FriendName)
	if err != nil {
		writeError(w, err)
		return
	}

	body := map[string]any{"matched": result.Matched}
	if result.Invitation != nil {
		body["invitation_id"] = result.Invitation.ID
	}
	if result.Edge != nil {
		body["edge"] = edgeJSON(*result.Edge)
	}
	writeJSON(w, http.StatusCreated, body)
}

func (s *Server) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	invitations, err := s.db.ListInvitationsForInviter(r.Context(), chi.URLParam(r, "personID"))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(invitations))
	for _, inv := range invitations {
		entry := map[string]any{
			"id":          inv.ID,
			"contact":     inv.InviteeContact,
			"tier":        inv.Tier,
			"friend_name": inv.FriendName,
			"matched":     inv.MatchedAt != nil,
		}
		if inv.MatchedUserID != "" {
			entry["matched_user_id"] = inv.MatchedUserID
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": out})
}

func postJSON(p store.Post) map[string]any {
	return map[string]any{
		"id":           p.ID,
		"author_id":    p.AuthorID,
		"content_type": p.ContentType,
		"content":      p.Content,
		"visibility":   p.Visibility,
		"created_at":   p.CreatedAt,
	}
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AuthorID    string   `json:"author_id"`
		ContentType string   `json:"content_type"`
		Content     string   `json:"content"`
		Visibility  []string `json:"visibility"`
	}
	if !decode(r, &req) {
		badRequest(w, "invalid json")
		return
	}

	visibility := make([]engine.Tier, len(req.Visibility))
	for i, t := range req.Visibility {
		visibility[i] = engine.Tier(t)
	}
	post, err := s.engine.CreatePost(r.Context(), req.AuthorID, req.ContentType, req.Content, visibility)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, postJSON(*post))
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID string `json:"actor_id"`
		Content string `json:"content"`
	}
	if !decode(r, &req) {
		badRequest(w, "invalid json")
		return
	}
	if err := s.engine.UpdatePost(r.Context(), chi.URLParam(r, "postID"), req.ActorID, req.Content); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID string `json:"actor_id"`
	}
	if !decode(r, &req) {
		badRequest(w, "invalid json")
		return
	}
	if err := s.engine.DeletePost(r.Context(), chi.URLParam(r, "postID"), req.ActorID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleAddInteraction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"user_id"`
		Type    string `json:"type"`
		Content string `json:"content"`
	}
	if !decode(r, &req) {
		badRequest(w, "invalid json")
		return
	}

	interaction, err := s.engine.AddInteraction(r.Context(), chi.URLParam(r, "postID"), req.UserID, req.Type, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":   interaction.ID,
		"type": interaction.Type,
	})
}

func (s *Server) handleTierFeed(w http.ResponseWriter, r *http.Request) {
	viewerID := r.URL.Query().Get("viewer")
	if viewerID == "" {
		badRequest(w, "viewer required")
		return
	}
	tier, err := engine.ParseTier(r.URL.Query().Get("tier"))
	if err != nil {
		writeError(w, err)
		return
	}

	posts, err := s.engine.TierFeed(r.Context(), viewerID, tier)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		entry := postJSON(p)
		entry["show_like_count"] = engine.ShowLikeCount(tier)
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": out})
}

func (s *Server) handleComputeNudges(w http.ResponseWriter, r *http.Request) {
	nudges, err := s.engine.ComputeNudges(r.Context(), chi.URLParam(r, "personID"), time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(nudges))
	for _, n := range nudges {
		entry := map[string]any{
			"id":                 n.ID,
			"friend_id":          n.FriendID,
			"tier":               n.Tier,
			"days_since_contact": n.DaysSinceContact,
			"suggested_action":   n.SuggestedAction,
		}
		if n.LastDeepContact != nil {
			entry["last_deep_contact"] = n.LastDeepContact
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"nudges": out})
}

func (s *Server) handleDismissNudge(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "personID")
	friendID := chi.URLParam(r, "friendID")
	if err := s.engine.DismissNudge(r.Context(), personID, friendID, time.Now().UTC()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}

func (s *Server) handleDeepContact(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "personID")
	friendID := chi.URLParam(r, "friendID")
	if err := s.engine.RecordDeepContact(r.Context(), personID, friendID, time.Now().UTC()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
