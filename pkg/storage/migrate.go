package storage

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/governance-platform/assessment/pkg/evaluation"
)

// evidenceFields are the file fields a response carries inline.
var evidenceFields = []string{"fileName", "fileSize", "fileType", "fileData"}

func intField(doc map[string]any, name string) (int64, bool, error) {
	v, ok := doc[name]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, true, fmt.Errorf("%s: %w", name, err)
		}
		return i, true, nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, true, fmt.Errorf("%s: %w", name, err)
		}
		return i, true, nil
	case float64:
		return int64(n), true, nil
	}
	return 0, true, fmt.Errorf("%s: unexpected type %T", name, v)
}

// stringifyID rewrites a numeric user id as a string.
func stringifyID(doc map[string]any, name string) {
	if n, ok := doc[name].(json.Number); ok {
		doc[name] = n.String()
	}
}

// Migrate upgrades a decoded record in place to the current schema version
// and reports whether anything changed.
func Migrate(doc map[string]any) (bool, error) {
	version, present, err := intField(doc, "schemaVersion")
	if err != nil {
		return false, err
	}
	if present && version == evaluation.SchemaVersion {
		return false, nil
	}
	if version > evaluation.SchemaVersion {
		return false, fmt.Errorf("unsupported schema version %d", version)
	}

	id, ok, err := intField(doc, "id")
	if err != nil {
		return false, err
	}
	if ok {
		doc["id"] = json.Number(strconv.FormatInt(id, 10))
	}

	stringifyID(doc, "organizationId")
	doc["schemaVersion"] = json.Number(strconv.Itoa(evaluation.SchemaVersion))
	if _, ok := doc["revision"]; !ok {
		doc["revision"] = json.Number("0")
	}
	if _, ok := doc["status"]; !ok {
		doc["status"] = string(evaluation.StatusDraft)
	}
	if _, ok := doc["lastModified"]; !ok {
		if created, ok := doc["createdDate"]; ok {
			doc["lastModified"] = created
		}
	}

	responses, _ := doc["responses"].(map[string]any)
	migrated := make(map[string]any, len(responses))
	for key, v := range responses {
		r, ok := v.(map[string]any)
		if !ok {
			return false, fmt.Errorf("response %s: expected object, got %T", key, v)
		}
		migrated[key] = migrateResponse(r)
	}
	doc["responses"] = migrated

	if review, ok := doc["evaluatorReview"].(map[string]any); ok {
		migrateReview(review)
	}
	return true, nil
}

func migrateResponse(r map[string]any) map[string]any {
	out := map[string]any{"maturityLevel": r["maturityLevel"]}
	if c, ok := r["comment"].(string); ok && c != "" {
		out["comment"] = c
	}
	src := r
	if nested, ok := r["evidence"].(map[string]any); ok {
		src = nested
	}
	if name, ok := src["fileName"].(string); ok && name != "" {
		for _, f := range evidenceFields {
			if v, ok := src[f]; ok {
				out[f] = v
			}
		}
		if _, ok := out["fileData"]; !ok {
			out["fileData"] = ""
		}
	}
	return out
}

func migrateReview(review map[string]any) {
	if _, ok := review["evaluatorId"]; !ok {
		review["evaluatorId"] = ""
	}
	stringifyID(review, "evaluatorId")
	adjustments, _ := review["adjustments"].(map[string]any)
	if adjustments == nil {
		adjustments = make(map[string]any)
	}
	for key, v := range adjustments {
		adj, ok := v.(map[string]any)
		if !ok {
			delete(adjustments, key)
			continue
		}
		// entries written by a justification edit alone carry no levels
		org, hasOrg, errOrg := intField(adj, "orgLevel")
		lvl, hasLvl, errLvl := intField(adj, "evaluatorLevel")
		if !hasOrg || !hasLvl || errOrg != nil || errLvl != nil {
			delete(adjustments, key)
			continue
		}
		adj["adjusted"] = org != lvl
		if _, ok := adj["justification"]; !ok {
			adj["justification"] = ""
		}
	}
	review["adjustments"] = adjustments
	if _, ok := review["evidenceVerification"].(map[string]any); !ok {
		review["evidenceVerification"] = make(map[string]any)
	}
}
