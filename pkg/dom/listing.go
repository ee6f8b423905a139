package dom

import "fmt"

// Element ids and attributes of the product listing template.
const (
	ContainerID = "products-container"
	SpinnerID   = "loading-spinner"
	HasMoreAttr = "data-has-more"
	ItemClass   = "product-item"
)

// Listing binds the elements of a product listing page.
type Listing struct {
	Container *Element
	Spinner   *Element
}

// FindListing locates the product container and loading spinner.
func FindListing(doc *Document) (*Listing, error) {
	container := doc.ByID(ContainerID)
	if container == nil {
		return nil, fmt.Errorf("%w: #%s", ErrElementNotFound, ContainerID)
	}
	spinner := doc.ByID(SpinnerID)
	if spinner == nil {
		return nil, fmt.Errorf("%w: #%s", ErrElementNotFound, SpinnerID)
	}
	return &Listing{Container: container, Spinner: spinner}, nil
}

// HasMoreAttr returns the raw data-has-more value of the container.
func (l *Listing) HasMoreAttr() string {
	return l.Container.Attr(HasMoreAttr)
}

// Items counts product items currently in the container.
func (l *Listing) Items() int {
	return l.Container.CountClass(ItemClass)
}
