package models

import "time"

// Course представляет курс, принадлежащий преподавателю.
// Уроки неопубликованного курса нельзя купить.
type Course struct {
	ID            int
	Title         string
	Description   string
	Price         int    // Цена разовой покупки, в минимальных единицах валюты
	Currency      string // Код валюты, например "RUB"
	InstructorUID string // UID преподавателя-владельца
	IsPublished   bool
	CreatedAt     time.Time
}

// Lesson представляет урок внутри курса. Уроки упорядочены полем Order,
// урок с минимальным Order — превью и виден всем.
type Lesson struct {
	ID       int
	CourseID int
	Title    string
	Order    int    // Порядковый номер внутри курса
	IsFree   bool   // Бесплатный урок виден без покупки
	MediaURL string // Непрозрачная ссылка на медиа, выдаётся только при доступе
}

// Enrollment — запись пользователя на курс, создаётся ровно один раз
// при первом успешном платеже за пару (пользователь, курс) и далее неизменна.
type Enrollment struct {
	ID        int
	UserUID   string
	CourseID  int
	CreatedAt time.Time
}

// Progress — состояние просмотра урока пользователем.
// Уникально по паре (пользователь, урок).
type Progress struct {
	ID          int
	UserUID     string
	LessonID    int
	TimeWatched int // Просмотрено секунд
	IsCompleted bool
}
