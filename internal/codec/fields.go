package codec

import (
	"fmt"

	"github.com/rpattn/afsync/internal/domain"
	"github.com/rpattn/afsync/pkg/validator"
)

// Field describes where a source column lands and how it is converted.
type Field struct {
	Column    string
	Name      string
	Convert   Converter
	Type      validator.FieldType
	Required  bool
	MaxLength int
	// Aliases are further header names accepted for the column.
	Aliases []string
}

// Definition returns the validation rules of the field.
func (f Field) Definition() validator.FieldDefinition {
	return validator.FieldDefinition{
		Name:      f.Name,
		Type:      f.Type,
		Required:  f.Required,
		MaxLength: f.MaxLength,
	}
}

// FieldMap is the ordered column mapping of one kind.
type FieldMap struct {
	kind   domain.Kind
	fields []Field
	index  map[string]int
}

// NewFieldMap builds a mapping from fields given in column order.
func NewFieldMap(kind domain.Kind, fields ...Field) FieldMap {
	m := FieldMap{
		kind:   kind,
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	copy(m.fields, fields)
	for i, f := range fields {
		m.index[f.Column] = i
	}
	for i, f := range fields {
		for _, name := range append([]string{f.Name}, f.Aliases...) {
			if _, taken := m.index[name]; !taken {
				m.index[name] = i
			}
		}
	}
	return m
}

// Kind returns the kind the mapping was built for.
func (m FieldMap) Kind() domain.Kind {
	return m.kind
}

// Lookup returns the field for a source column, matched by export column
// name, destination name or alias. Unknown columns pass through under their
// own name with identity conversion.
func (m FieldMap) Lookup(column string) (Field, bool) {
	if i, ok := m.index[column]; ok {
		return m.fields[i], true
	}
	return Field{Column: column, Name: column, Convert: String, Type: validator.FieldTypeString}, false
}

// Fields returns the known fields in column order.
func (m FieldMap) Fields() []Field {
	out := make([]Field, len(m.fields))
	copy(out, m.fields)
	return out
}

// Key returns the field holding the entity id of the kind.
func (m FieldMap) Key() (Field, bool) {
	if len(m.fields) == 0 {
		return Field{}, false
	}
	return m.fields[0], true
}

// Destinations returns the set of known destination field names.
func (m FieldMap) Destinations() map[string]struct{} {
	out := make(map[string]struct{}, len(m.fields))
	for _, f := range m.fields {
		out[f.Name] = struct{}{}
	}
	return out
}

func text(column, name string) Field {
	return Field{Column: column, Name: name, Convert: String, Type: validator.FieldTypeString}
}

func integer(column, name string) Field {
	return Field{Column: column, Name: name, Convert: OptionalInt, Type: validator.FieldTypeInteger}
}

func phone(column, name string) Field {
	return Field{Column: column, Name: name, Convert: PhoneIndicator, Type: validator.FieldTypeInteger}
}

func boolean(column, name string) Field {
	return Field{Column: column, Name: name, Convert: OptionalBool, Type: validator.FieldTypeBoolean}
}

func date(column, name string) Field {
	return Field{Column: column, Name: name, Convert: FrenchDate, Type: validator.FieldTypeDate}
}

func required(f Field) Field {
	f.Required = true
	return f
}

func maxLength(n int, f Field) Field {
	f.MaxLength = n
	return f
}

func alias(f Field, names ...string) Field {
	f.Aliases = append(f.Aliases, names...)
	return f
}

var userFields = NewFieldMap(domain.KindUsers,
	required(integer("Identifiant AF", "af_id")),
	maxLength(20, text("Identifiant école", "ax_id")),
	required(text("Prénom", "first_name")),
	required(alias(text("Nom d'état civil", "last_name"), "name")),
	text("Nom d'usage", "common_name"),
	text("Civilité", "civility"),
	date("Date de naissance", "birthdate"),
	text("Adresse personnelle - Ligne 1", "address_1"),
	text("Adresse personnelle - Ligne 2", "address_2"),
	text("Adresse personnelle - Ligne 3", "address_3"),
	text("Adresse personnelle - Ligne 4", "address_4"),
	text("Adresse personnelle - Code Postal", "address_postcode"),
	text("Adresse personnelle - Ville", "address_city"),
	text("Adresse personnelle - État", "address_state"),
	text("Adresse personnelle - Pays", "address_country"),
	boolean("NPAI", "address_npai"),
	text("Téléphone fixe personnel", "phone_personnal"),
	text("Téléphone mobile personnel", "phone_mobile"),
	text("Email personnel 1", "email_1"),
	text("Email personnel 2", "email_2"),
	text("Nationalité", "nationality"),
	boolean("Décédé", "dead"),
	date("Date de décès", "deathdate"),
	required(integer("Type d'utilisateur", "user_kind")),
	integer("Rôles supplémentaires", "additional_roles"),
	text("Login X.org", "xorg_id"),
	text("Matricule école", "school_id"),
	text("Voie d'entrée", "admission_path"),
	text("Domaine du cursus", "cursus_domain"),
	text("Intitulé du cursus", "cursus_name"),
	text("Corps actuel", "corps_current"),
	text("Corps d'origine", "corps_origin"),
	text("Grade", "corps_grade"),
	text("Surnom", "nickname"),
	text("Seconde nationalité", "nationality_2"),
	text("Troisième nationalité", "nationality_3"),
	text("Mort pour la france", "dead_for_france"),
	text("Sections sportive à l’X", "sport_section"),
	text("Ex-binets", "binets"),
	text("Réception courrier", "mail_reception"),
	text("Inscription aux newsletters", "newsletter_inscriptions"),
	text("URL de la photo de profil", "profile_picture_url"),
)

var groupFields = NewFieldMap(domain.KindGroups,
	required(integer("Identifiant AF", "af_id")),
	maxLength(20, text("Identifiant AX", "ax_id")),
	text("URL", "url"),
	text("Nom", "name"),
	text("Catégorie", "category"),
)

var groupMemberFields = NewFieldMap(domain.KindGroupMembers,
	required(integer("Identifiant AF utilisateur", "account_id")),
	required(integer("Identifiant AF groupe", "group_id")),
	required(text("Rôle", "role")),
)

var userDegreeFields = NewFieldMap(domain.KindUserDegrees,
	required(integer("Identifiant AF", "account_id")),
	required(text("Référence du diplôme", "diploma_reference")),
	boolean("Diplômé", "diplomed"),
	date("Date de diplomation", "diplomation_date"),
	text("Cycle", "cycle"),
	text("Domaine", "domain"),
	text("Intitulé", "name"),
)

var userJobFields = NewFieldMap(domain.KindUserJobs,
	required(integer("Identifiant AF", "account_id")),
	required(text("Intitulé du poste", "title")),
	text("Fonction", "role"),
	required(text("Entreprise", "company_name")),
	text("Adresse - Ligne 1", "address_1"),
	text("Adresse - Ligne 2", "address_2"),
	text("Adresse - Ligne 3", "address_3"),
	text("Adresse - Ligne 4", "address_4"),
	text("Adresse - Code Postal", "address_postcode"),
	text("Adresse - Ville", "address_city"),
	text("Adresse - Pays", "address_country"),
	phone("Indicatif téléphone", "phone_indicator"),
	text("Téléphone", "phone_number"),
	phone("Indicatif mobile", "mobile_phone_indicator"),
	text("Mobile", "mobile_phone_number"),
	text("Fax", "fax"),
	text("Email", "email"),
	date("Date de début", "start_date"),
	date("Date de fin", "end_date"),
	text("Type de contrat", "contract_kind"),
	boolean("Poste actuel", "current"),
	boolean("Créateur de l'entreprise", "creator_of_company"),
	boolean("Repreneur de l'entreprise", "buyer_of_company"),
)

// ForKind returns the column mapping of an export kind.
func ForKind(kind domain.Kind) (FieldMap, error) {
	switch kind {
	case domain.KindUsers:
		return userFields, nil
	case domain.KindGroups:
		return groupFields, nil
	case domain.KindGroupMembers:
		return groupMemberFields, nil
	case domain.KindUserDegrees:
		return userDegreeFields, nil
	case domain.KindUserJobs:
		return userJobFields, nil
	default:
		return FieldMap{}, fmt.Errorf("no field mapping for kind %q", kind)
	}
}
