package api

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fhirstore/zunder/internal/apperr"
	"github.com/fhirstore/zunder/internal/index"
	"github.com/fhirstore/zunder/internal/store"
	"github.com/fhirstore/zunder/pkg/fhirmodel"
	"github.com/fhirstore/zunder/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

func setResourceID(body []byte, id string) []byte {
	var tree map[string]any
	if err := json.Unmarshal(body, &tree); err != nil {
		return body
	}
	tree["id"] = id
	out, err := json.Marshal(tree)
	if err != nil {
		return body
	}
	return out
}

func contentHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func readBody(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "read request body")
	}
	if len(body) == 0 {
		return nil, apperr.New(apperr.KindValidation, "request body is empty")
	}
	return body, nil
}

func resourceTypeOf(body []byte) (string, error) {
	var meta struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return "", apperr.Wrap(apperr.KindInvalidResource, err, "parse resource body")
	}
	if meta.ResourceType == "" {
		return "", apperr.New(apperr.KindInvalidResource, "resource body missing resourceType")
	}
	return meta.ResourceType, nil
}

// Create handles POST /:type — an unconditional create when no
// If-None-Exist header is present, otherwise a conditional create (spec
// §4.7 / §6: 0 matches creates, exactly 1 returns the existing instance,
// ≥2 is a 412).
func (s *Server) Create(c *gin.Context) {
	resourceType := c.Param("type")
	body, err := readBody(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if bodyType, terr := resourceTypeOf(body); terr != nil {
		writeError(c, terr)
		return
	} else if bodyType != resourceType {
		writeError(c, apperr.Newf(apperr.KindInvalidResource, "resource type %q does not match URL type %q", bodyType, resourceType))
		return
	}

	criteria := c.GetHeader("If-None-Exist")
	prefer, _ := parsePrefer(c)

	var (
		id         string
		version    int64
		matched    bool
		matchedRow *store.ResourceRow
	)
	txErr := s.Store.WithTx(func(tx store.TxContext) error {
		if criteria != "" {
			count, cerr := s.Engine.CountTx(tx.Tx(), resourceType, criteria)
			if cerr != nil {
				return cerr
			}
			if count > 1 {
				return apperr.Newf(apperr.KindPreconditionFailed, "If-None-Exist criteria %q matched more than one %s", criteria, resourceType)
			}
			if count == 1 {
				ids, ferr := s.Engine.FindIDsTx(tx.Tx(), resourceType, criteria, 1)
				if ferr != nil {
					return ferr
				}
				row, rerr := tx.ReadCurrent(resourceType, ids[0])
				if rerr != nil {
					return apperr.Wrap(apperr.KindDatabase, rerr, "read conditionally-matched resource")
				}
				matched = true
				matchedRow = row
				return nil
			}
		}

		id = uuid.NewString()
		v, verr := tx.NextVersion(resourceType, id)
		if verr != nil {
			return apperr.Wrap(apperr.KindDatabase, verr, "allocate version")
		}
		version = v
		newBody := setResourceID(body, id)
		hash := contentHash(newBody)
		row := &store.ResourceRow{Type: resourceType, ID: id, VersionID: version, Body: newBody, ContentHash: &hash}
		if err := tx.CreateResource(row); err != nil {
			return apperr.Wrap(apperr.KindDatabase, err, "insert resource")
		}
		if err := s.afterWrite(tx.Tx(), resourceType, id, version, newBody); err != nil {
			return err
		}
		return nil
	})
	if txErr != nil {
		writeError(c, txErr)
		return
	}

	if matched {
		s.respondWrite(c, http.StatusOK, resourceType, matchedRow.ID, matchedRow.VersionID, matchedRow.Body, prefer)
		return
	}
	s.respondWrite(c, http.StatusCreated, resourceType, id, version, setResourceID(body, id), prefer)
}

// Read handles GET /:type/:id.
func (s *Server) Read(c *gin.Context) {
	resourceType, id := c.Param("type"), c.Param("id")
	row, err := s.Store.Read(resourceType, id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeHistoryHeaders(c, s.baseURLFor(c), resourceType, id, row.VersionID, row.LastUpdated)
	writeResource(c, http.StatusOK, row.Body)
}

// VRead handles GET /:type/:id/_history/:vid.
func (s *Server) VRead(c *gin.Context) {
	resourceType, id := c.Param("type"), c.Param("id")
	versionID, err := strconv.ParseInt(c.Param("vid"), 10, 64)
	if err != nil {
		writeError(c, apperr.Newf(apperr.KindValidation, "invalid version id %q", c.Param("vid")))
		return
	}
	row, err := s.Store.VRead(resourceType, id, versionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if row.Deleted {
		writeError(c, apperr.Newf(apperr.KindDeleted, "%s/%s version %d is deleted", resourceType, id, versionID))
		return
	}
	writeHistoryHeaders(c, s.baseURLFor(c), resourceType, id, row.VersionID, row.LastUpdated)
	writeResource(c, http.StatusOK, row.Body)
}

// Update handles PUT /:type/:id (instance update) and PUT /:type
// (conditional update by search criteria, spec §4.7/§6).
func (s *Server) Update(c *gin.Context) {
	resourceType := c.Param("type")
	id := c.Param("id")
	body, err := readBody(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if bodyType, terr := resourceTypeOf(body); terr != nil {
		writeError(c, terr)
		return
	} else if bodyType != resourceType {
		writeError(c, apperr.Newf(apperr.KindInvalidResource, "resource type %q does not match URL type %q", bodyType, resourceType))
		return
	}

	expectedVersion, err := parseIfMatch(c)
	if err != nil {
		writeError(c, apperr.New(apperr.KindValidation, err.Error()))
		return
	}
	prefer, _ := parsePrefer(c)

	var (
		created bool
		version int64
	)
	txErr := s.Store.WithTx(func(tx store.TxContext) error {
		if id == "" {
			criteria := c.Request.URL.RawQuery
			if criteria == "" {
				return apperr.New(apperr.KindValidation, "conditional update requires search criteria")
			}
			count, cerr := s.Engine.CountTx(tx.Tx(), resourceType, criteria)
			if cerr != nil {
				return cerr
			}
			switch {
			case count == 0:
				id = uuid.NewString()
				created = true
			case count == 1:
				ids, ferr := s.Engine.FindIDsTx(tx.Tx(), resourceType, criteria, 1)
				if ferr != nil {
					return ferr
				}
				id = ids[0]
			default:
				return apperr.Newf(apperr.KindPreconditionFailed, "conditional update criteria %q matched more than one %s", criteria, resourceType)
			}
		}

		current, readErr := tx.ReadCurrent(resourceType, id)
		if readErr != nil && !errors.Is(readErr, sql.ErrNoRows) {
			return apperr.Wrap(apperr.KindDatabase, readErr, "check existing resource")
		}
		if errors.Is(readErr, sql.ErrNoRows) {
			created = true
		} else if expectedVersion != nil && *expectedVersion != current.VersionID {
			return apperr.Newf(apperr.KindVersionConflict, "expected version %d, current is %d", *expectedVersion, current.VersionID)
		}

		v, verr := tx.NextVersion(resourceType, id)
		if verr != nil {
			return apperr.Wrap(apperr.KindDatabase, verr, "allocate version")
		}
		version = v
		newBody := setResourceID(body, id)
		hash := contentHash(newBody)
		row := &store.ResourceRow{Type: resourceType, ID: id, VersionID: version, Body: newBody, ContentHash: &hash}
		if err := tx.UpdateResource(row); err != nil {
			return apperr.Wrap(apperr.KindDatabase, err, "write resource")
		}
		return s.afterWrite(tx.Tx(), resourceType, id, version, newBody)
	})
	if txErr != nil {
		writeError(c, txErr)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.respondWrite(c, status, resourceType, id, version, setResourceID(body, id), prefer)
}

// Patch handles PATCH /:type/:id, applying an RFC 7396 JSON Merge Patch
// to the current body. The server only supports application/merge-patch+json
// bodies; JSON Patch (RFC 6902) and FHIRPath Patch are Non-goals (spec §4
// scopes PATCH support down to the one format every client library emits
// by default).
func (s *Server) Patch(c *gin.Context) {
	resourceType, id := c.Param("type"), c.Param("id")
	patch, err := readBody(c)
	if err != nil {
		writeError(c, err)
		return
	}
	expectedVersion, err := parseIfMatch(c)
	if err != nil {
		writeError(c, apperr.New(apperr.KindValidation, err.Error()))
		return
	}
	prefer, _ := parsePrefer(c)

	var (
		version int64
		newBody []byte
	)
	txErr := s.Store.WithTx(func(tx store.TxContext) error {
		current, readErr := tx.ReadCurrent(resourceType, id)
		if errors.Is(readErr, sql.ErrNoRows) {
			return apperr.Newf(apperr.KindNotFound, "%s/%s not found", resourceType, id)
		}
		if readErr != nil {
			return apperr.Wrap(apperr.KindDatabase, readErr, "read current resource")
		}
		if current.Deleted {
			return apperr.Newf(apperr.KindDeleted, "%s/%s is deleted", resourceType, id)
		}
		if expectedVersion != nil && *expectedVersion != current.VersionID {
			return apperr.Newf(apperr.KindVersionConflict, "expected version %d, current is %d", *expectedVersion, current.VersionID)
		}

		merged, merr := mergePatch(current.Body, patch)
		if merr != nil {
			return apperr.Wrap(apperr.KindInvalidResource, merr, "apply merge patch")
		}
		newBody = setResourceID(merged, id)

		v, verr := tx.NextVersion(resourceType, id)
		if verr != nil {
			return apperr.Wrap(apperr.KindDatabase, verr, "allocate version")
		}
		version = v
		hash := contentHash(newBody)
		row := &store.ResourceRow{Type: resourceType, ID: id, VersionID: version, Body: newBody, ContentHash: &hash}
		if err := tx.UpdateResource(row); err != nil {
			return apperr.Wrap(apperr.KindDatabase, err, "write resource")
		}
		return s.afterWrite(tx.Tx(), resourceType, id, version, newBody)
	})
	if txErr != nil {
		writeError(c, txErr)
		return
	}
	s.respondWrite(c, http.StatusOK, resourceType, id, version, newBody, prefer)
}

// mergePatch applies an RFC 7396 JSON Merge Patch: any key in patch whose
// value is null removes the key from doc; any other key replaces it
// (recursively, for nested objects); arrays and scalars are replaced
// wholesale, never merged element-wise.
func mergePatch(doc, patch []byte) ([]byte, error) {
	var target map[string]any
	if err := json.Unmarshal(doc, &target); err != nil {
		return nil, err
	}
	var p map[string]any
	if err := json.Unmarshal(patch, &p); err != nil {
		return nil, err
	}
	merged := mergeObjects(target, p)
	return json.Marshal(merged)
}

func mergeObjects(target, patch map[string]any) map[string]any {
	if target == nil {
		target = map[string]any{}
	}
	for k, v := range patch {
		if v == nil {
			delete(target, k)
			continue
		}
		if patchObj, ok := v.(map[string]any); ok {
			if targetObj, ok := target[k].(map[string]any); ok {
				target[k] = mergeObjects(targetObj, patchObj)
				continue
			}
			target[k] = mergeObjects(map[string]any{}, patchObj)
			continue
		}
		target[k] = v
	}
	return target
}

// Delete handles DELETE /:type/:id (instance delete) and DELETE /:type
// (conditional delete by search criteria, spec §4.7/§6).
func (s *Server) Delete(c *gin.Context) {
	resourceType, id := c.Param("type"), c.Param("id")

	if id == "" {
		criteria := c.Request.URL.RawQuery
		if criteria == "" {
			writeError(c, apperr.New(apperr.KindValidation, "conditional delete requires search criteria"))
			return
		}
		count, err := s.Engine.Count(resourceType, criteria)
		if err != nil {
			writeError(c, err)
			return
		}
		switch {
		case count == 0:
			c.Status(http.StatusNoContent)
			return
		case count > 1:
			writeError(c, apperr.Newf(apperr.KindPreconditionFailed, "conditional delete criteria %q matched more than one %s", criteria, resourceType))
			return
		}
		ids, err := s.Engine.FindIDs(resourceType, criteria, 1)
		if err != nil {
			writeError(c, err)
			return
		}
		id = ids[0]
	}

	row, err := s.Store.Delete(resourceType, id, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	if row != nil {
		s.Hooks.DispatchDelete(s.Store.Conn(), resourceType, id)
		if err := s.enqueueDeleteIndex(resourceType, id, row.VersionID); err != nil {
			logWarnEnqueueFailure(resourceType, id, err)
		}
	}
	c.Status(http.StatusNoContent)
}

// afterWrite runs the post-write hook dispatch and async index enqueue
// inside the same transaction as the write itself (spec §4.8/§5),
// mirroring internal/bundle's executeEntry afterWrite step so every
// write path — bundle or direct HTTP — keeps search indexing and
// extracted-table hooks consistent with the committed write.
func (s *Server) afterWrite(tx *sqlx.Tx, resourceType, id string, version int64, body []byte) error {
	if err := s.Hooks.DispatchWrite(tx, resourceType, id, body); err != nil {
		return apperr.Wrap(apperr.KindBusinessRule, err, "post-write hook")
	}
	if err := index.EnqueueJob(tx, resourceType, id, version); err != nil {
		return apperr.Wrap(apperr.KindDatabase, err, "enqueue index job")
	}
	return nil
}

func (s *Server) enqueueDeleteIndex(resourceType, id string, version int64) error {
	return s.Store.WithTx(func(tx store.TxContext) error {
		return index.EnqueueJob(tx.Tx(), resourceType, id, version)
	})
}

func logWarnEnqueueFailure(resourceType, id string, err error) {
	logger.WithFields(logger.Fields{
		"resource_type": resourceType, "id": id, "error": err,
	}).Warn("failed to enqueue index job after delete")
}

// respondWrite renders the final HTTP response for a successful
// create/update/patch, honoring Prefer: return (spec §6).
func (s *Server) respondWrite(c *gin.Context, status int, resourceType, id string, version int64, body []byte, prefer fhirmodel.PreferReturn) {
	writeHistoryHeaders(c, s.baseURLFor(c), resourceType, id, version, time.Now())
	switch prefer {
	case fhirmodel.PreferReturnMinimal:
		c.Status(status)
	case fhirmodel.PreferReturnOperationOutcome:
		c.Header("Content-Type", fhirJSON)
		c.JSON(status, fhirmodel.NewOperationOutcome(fhirmodel.IssueSeverityInfo, "informational", "write succeeded"))
	default:
		writeResource(c, status, body)
	}
}

func (s *Server) baseURLFor(c *gin.Context) string { return baseURL(c, s.BasePath) }
