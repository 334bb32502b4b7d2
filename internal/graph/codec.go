package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// nodeValidate checks node variants at the deserialization boundary.
var nodeValidate *validator.Validate

func init() {
	nodeValidate = validator.New(validator.WithRequiredStructEnabled())
	nodeValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	nodeValidate.RegisterStructValidation(validateVariant, Node{})
}

// validateVariant enforces the tagged-union rules between roles and their
// role-specific fields.
func validateVariant(sl validator.StructLevel) {
	n := sl.Current().Interface().(Node)

	if n.Role == RoleCritic {
		if n.Verdict == "" {
			sl.ReportError(n.Verdict, "verdict", "Verdict", "required_for_critic", "")
		} else if !n.Verdict.Valid() {
			sl.ReportError(n.Verdict, "verdict", "Verdict", "verdict", string(n.Verdict))
		}
		if n.Target == "" {
			sl.ReportError(n.Target, "target", "Target", "required_for_critic", "")
		}
	} else {
		if n.Verdict != "" {
			sl.ReportError(n.Verdict, "verdict", "Verdict", "critic_only", "")
		}
		if n.VerdictReason != "" {
			sl.ReportError(n.VerdictReason, "verdictReason", "VerdictReason", "critic_only", "")
		}
		if n.Target != "" {
			sl.ReportError(n.Target, "target", "Target", "critic_only", "")
		}
	}

	if n.Role == RoleSummary {
		if len(n.SummarizedSegment) == 0 {
			sl.ReportError(n.SummarizedSegment, "summarizedSegment", "SummarizedSegment", "required_for_summary", "")
		}
	} else if len(n.SummarizedSegment) > 0 {
		sl.ReportError(n.SummarizedSegment, "summarizedSegment", "SummarizedSegment", "summary_only", "")
	}
}

// ValidateNode checks the schema and variant rules for n.
func ValidateNode(n *Node) error {
	if err := nodeValidate.Struct(n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidNode, formatValidationError(err))
	}
	return nil
}

// DecodeNode decodes and validates one persisted line.
func DecodeNode(line []byte) (Node, error) {
	var n Node
	if err := json.Unmarshal(line, &n); err != nil {
		return Node{}, err
	}
	if err := ValidateNode(&n); err != nil {
		return Node{}, err
	}
	return n, nil
}

// DecodeDeletedNode decodes a deleted-log line. The embedded node must still
// be valid and the deletion must be stamped.
func DecodeDeletedNode(line []byte) (DeletedNode, error) {
	var d DeletedNode
	if err := json.Unmarshal(line, &d); err != nil {
		return DeletedNode{}, err
	}
	if err := ValidateNode(&d.Node); err != nil {
		return DeletedNode{}, err
	}
	if d.DeletedAt.IsZero() {
		return DeletedNode{}, fmt.Errorf("%w: deletedAt is required", ErrInvalidNode)
	}
	return d, nil
}

func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := e.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		switch e.Tag() {
		case "required", "required_for_critic", "required_for_summary":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		case "verdict":
			msgs = append(msgs, fmt.Sprintf("%s %q is not a known verdict", field, e.Param()))
		case "critic_only":
			msgs = append(msgs, fmt.Sprintf("%s is only allowed on critic nodes", field))
		case "summary_only":
			msgs = append(msgs, fmt.Sprintf("%s is only allowed on summary nodes", field))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(msgs, "; ")
}
