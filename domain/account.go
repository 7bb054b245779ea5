package domain

import "time"

// Namespace identifies an external identity namespace an account can be
// bound to. Each account holds at most one binding per namespace.
type Namespace string

const (
	// NamespaceJava is the Minecraft: Java Edition profile namespace
	// (UUID-style profile id + profile name).
	NamespaceJava Namespace = "java"
	// NamespaceXbox is the Xbox network namespace (numeric XUID +
	// gamertag + optional gamerpic).
	NamespaceXbox Namespace = "xbox"
)

// Account is a local MCHub account. Bindings are mutated only through
// AccountRepository.UpdateBinding; account lifecycle (creation, deletion)
// belongs to the wider platform, not this service.
type Account struct {
	ID        string       `bson:"_id,omitempty" json:"id"`
	Username  string       `bson:"username" json:"username"`
	Java      *JavaBinding `bson:"java,omitempty" json:"java,omitempty"`
	Xbox      *XboxBinding `bson:"xbox,omitempty" json:"xbox,omitempty"`
	CreatedAt time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time    `bson:"updated_at" json:"updated_at"`
}

// JavaBinding binds an account to a Java Edition profile.
type JavaBinding struct {
	ProfileID   string    `bson:"profile_id" json:"profile_id"`
	ProfileName string    `bson:"profile_name" json:"profile_name"`
	LinkedAt    time.Time `bson:"linked_at" json:"linked_at"`
}

// XboxBinding binds an account to an Xbox network identity.
type XboxBinding struct {
	XUID      string    `bson:"xuid" json:"xuid"`
	Gamertag  string    `bson:"gamertag" json:"gamertag"`
	AvatarURL string    `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	LinkedAt  time.Time `bson:"linked_at" json:"linked_at"`
}

// Binding is the namespace-generic view of a persisted binding, used when
// writing through AccountRepository.UpdateBinding.
type Binding struct {
	Namespace   Namespace
	ExternalID  string
	DisplayName string
	AvatarURL   string
}

// BindingFor returns the account's binding in the given namespace as the
// generic view, or nil if the namespace is unbound.
func (a *Account) BindingFor(ns Namespace) *Binding {
	switch ns {
	case NamespaceJava:
		if a.Java == nil {
			return nil
		}
		return &Binding{
			Namespace:   NamespaceJava,
			ExternalID:  a.Java.ProfileID,
			DisplayName: a.Java.ProfileName,
		}
	case NamespaceXbox:
		if a.Xbox == nil {
			return nil
		}
		return &Binding{
			Namespace:   NamespaceXbox,
			ExternalID:  a.Xbox.XUID,
			DisplayName: a.Xbox.Gamertag,
			AvatarURL:   a.Xbox.AvatarURL,
		}
	}
	return nil
}
