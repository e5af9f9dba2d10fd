package auth

// Owned is implemented by every resource that belongs to a single admin
type Owned interface {
	OwnerID() string
}

// CheckOwnership returns resource when actingID owns it. A nil resource yields
// a not-found error naming resourceName; an owner mismatch yields ErrForbidden.
// It must run before every read-for-mutation and every mutation.
func CheckOwnership[T any, PT interface {
	*T
	Owned
}](resource PT, actingID, resourceName string) (PT, error) {
	if resource == nil {
		return nil, NotFoundError(resourceName)
	}
	if actingID == "" || resource.OwnerID() != actingID {
		return nil, ErrForbidden
	}
	return resource, nil
}
