package triples

// Triple is an (subject, predicate, object) statement. Each field is an
// opaque non-empty byte sequence interpreted as UTF-8; URIs are not
// syntactically validated beyond non-emptiness.
type Triple struct {
	Subject, Predicate, Object string
}

func validateTriple(t Triple) error {
	if t.Subject == "" {
		return newError(InvalidURI, "subject must not be empty", nil)
	}
	if t.Predicate == "" {
		return newError(InvalidURI, "predicate must not be empty", nil)
	}
	if t.Object == "" {
		return newError(InvalidURI, "object must not be empty", nil)
	}
	return nil
}
